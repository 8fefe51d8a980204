//go:build mage

// Package main provides build targets for the backlog project using Mage.
//
// Usage:
//
//	mage build          Compile the backlog binary to bin/
//	mage test:all       Run every test, including the postgres container suite
//	mage test:unit      Run tests in short mode (no containers)
//	mage test:postgres  Run only the postgres store suite
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install backlog to GOPATH/bin
//	mage stats          Print Go lines of code
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "backlog"
	binaryDir  = "bin"
	cmdDir     = "./cmd/backlog"
	modulePath = "github.com/mesh-intelligence/backlog"
)

// Build compiles the backlog binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test groups the test targets.
type Test mg.Namespace

// All runs every test. The postgres suite skips itself without Docker.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Unit runs the tests in short mode.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Postgres runs the store suite against a PostgreSQL container.
func (Test) Postgres() error {
	return sh.RunV(binGo, "test", "-v", "-run", "TestPostgresStore", modulePath+"/internal/store")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Stats prints Go lines of code, split into production and test code.
func Stats() error {
	var prodLines, testLines int

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch path {
			case "vendor", ".git", binaryDir, "magefiles", "_examples":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		count, countErr := countLines(path)
		if countErr != nil {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") {
			testLines += count
		} else {
			prodLines += count
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Lines of code (Go, total):      %d\n", prodLines+testLines)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
