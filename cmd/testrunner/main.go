// Command testrunner runs precompiled package test binaries (built with
// `go test -c`) in parallel, then optionally one integration package on its
// own. It is used in container images that ship no Go toolchain.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

type options struct {
	testsDir        string
	workDir         string
	short           bool
	pkgParallel     int
	count           int
	integrationRun  string
	integrationPath string
	verbose         bool
}

func main() {
	var o options
	flag.StringVar(&o.testsDir, "tests-dir", "/app/tests", "directory containing compiled test binaries")
	flag.StringVar(&o.workDir, "work-dir", "/app", "fallback working directory for test binaries")
	flag.BoolVar(&o.short, "short", false, "run tests with -test.short")
	flag.IntVar(&o.pkgParallel, "pkg-parallel", runtime.NumCPU(), "number of packages to run in parallel")
	flag.IntVar(&o.count, "count", 1, "pass -test.count to disable caching when set to 1")
	flag.StringVar(&o.integrationRun, "integration-run", "", "regex of integration test(s) to run with -test.run, e.g. Remote_Integration")
	flag.StringVar(&o.integrationPath, "integration-path", "", "relative package path like 'api/router' for the integration run")
	flag.BoolVar(&o.verbose, "v", true, "add -test.v to test binaries")
	flag.Parse()

	if err := run(o, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options, stdout, stderr io.Writer) error {
	bins, err := collectTestBinaries(o.testsDir)
	if err != nil {
		return err
	}
	if len(bins) == 0 {
		return errors.New("no test binaries found")
	}

	var integrationBin string
	if o.integrationRun != "" {
		if o.integrationPath == "" {
			return errors.New("integration-path is required when integration-run is set")
		}
		integrationBin = filepath.Join(o.testsDir, filepath.FromSlash(o.integrationPath)+".test")
		if _, err := os.Stat(integrationBin); err != nil {
			return fmt.Errorf("integration binary not found at %s: %w", integrationBin, err)
		}
	}

	// The integration package runs in its own pass.
	unitBins := make([]string, 0, len(bins))
	for _, b := range bins {
		if integrationBin != "" && sameFile(b, integrationBin) {
			continue
		}
		unitBins = append(unitBins, b)
	}

	out := &lockedWriter{w: stdout}
	errOut := &lockedWriter{w: stderr}

	fmt.Fprintln(out, "==> Running unit tests")
	if err := runBinaries(unitBins, testArgs(o.verbose, o.short, o.count, 0), o.pkgParallel, o.workDir, out, errOut); err != nil {
		return err
	}

	if integrationBin != "" {
		fmt.Fprintf(out, "==> Running integration tests in %s with -test.run=%s\n", o.integrationPath, o.integrationRun)
		args := append(testArgs(o.verbose, o.short, o.count, 1), "-test.run", o.integrationRun)
		if err := runBinaries([]string{integrationBin}, args, 1, o.workDir, out, errOut); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "==> All tests passed")
	return nil
}

func collectTestBinaries(root string) ([]string, error) {
	var bins []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".test") {
			bins = append(bins, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(bins)
	return bins, nil
}

func testArgs(verbose, short bool, count, testParallel int) []string {
	args := []string{}
	if verbose {
		args = append(args, "-test.v")
	}
	if short {
		args = append(args, "-test.short")
	}
	if count > 0 {
		args = append(args, fmt.Sprintf("-test.count=%d", count))
	}
	if testParallel > 0 {
		args = append(args, fmt.Sprintf("-test.parallel=%d", testParallel))
	}
	return args
}

// runBinaries runs every binary, at most parallel at a time, and reports all
// failures rather than the first one.
func runBinaries(bins, args []string, parallel int, workDir string, stdout, stderr io.Writer) error {
	if parallel < 1 {
		parallel = 1
	}
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []error
	)
	g.SetLimit(parallel)
	for _, b := range bins {
		b := b
		g.Go(func() error {
			cmd := exec.Command(b, args...)
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			cmd.Env = os.Environ()
			cmd.Dir = packageDir(b, workDir)
			fmt.Fprintf(stdout, "[RUN] %s %s\n", b, strings.Join(args, " "))
			if err := cmd.Run(); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s failed: %w", b, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

// packageDir runs a binary next to its package sources when they were
// shipped alongside it, so relative testdata paths resolve.
func packageDir(bin, fallback string) string {
	if dir := strings.TrimSuffix(bin, ".test"); dir != bin {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
	}
	return fallback
}

func sameFile(a, b string) bool {
	ap, _ := filepath.Abs(a)
	bp, _ := filepath.Abs(b)
	return ap == bp
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
