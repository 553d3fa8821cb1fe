package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for the different failure modes
const (
	ExitSuccess    = 0 // everything passed
	ExitEvalFailed = 1 // the run completed but items failed grading
	ExitError      = 2 // configuration or runtime error
)

// EvalFailureError indicates the run itself succeeded but one or more items
// failed grading.
type EvalFailureError struct {
	Message string
}

func (e *EvalFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var evalFailure *EvalFailureError
		if errors.As(err, &evalFailure) {
			os.Exit(ExitEvalFailed)
		}
		os.Exit(ExitError)
	}
}
