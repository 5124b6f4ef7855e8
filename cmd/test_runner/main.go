// Command test_runner runs the module's tests, optionally against a live
// PostgreSQL for the trade store integration tests.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const postgresDSNEnv = "TRADELEDGER_TEST_POSTGRES_DSN"

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	race       = flag.Bool("race", true, "enable the race detector")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	pkg        = flag.String("pkg", "./...", "package pattern to test")
	postgres   = flag.String("postgres", "", "DSN of a scratch PostgreSQL database; enables the postgres store tests")
)

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}
	args = append(args, "-count=1", *pkg)

	cmd := exec.Command("go", args...)
	env := os.Environ()
	if *postgres != "" {
		env = append(env, postgresDSNEnv+"="+*postgres)
	}
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if *postgres != "" {
		fmt.Println("PostgreSQL trade store tests enabled")
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
