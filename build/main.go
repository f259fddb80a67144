package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "./...")
	},
})

var binary = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the ipabuild binary into bin/",
	Action: func(a *goyek.A) {
		run(a, "go", "build", "-o", "bin/ipabuild", "./cmd/ipabuild")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, test and build",
	Deps:  goyek.Deps{vet, test, binary},
})

func main() {
	goyek.Main(os.Args[1:])
}
