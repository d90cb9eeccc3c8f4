package async

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of one task.
type Result struct {
	Name string
	Err  error
}

// Run executes tasks with at most limit running at once and returns one
// Result per task, in task order. A limit below one runs every task
// concurrently. Tasks not yet started when ctx is done are recorded with
// the context error and never run.
//
// Example:
//
//	results := async.Run(ctx, []async.Task{
//	    {Name: "eu-west-1", Func: deployEU},
//	    {Name: "us-east-1", Func: deployUS},
//	}, 8)
func Run(ctx context.Context, tasks []Task, limit int) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		results[i].Name = task.Name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Err = task.Func(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RunParallel executes tasks like Run and folds every failure into a
// single error. Each failure is prefixed with its task name.
func RunParallel(ctx context.Context, tasks []Task, limit int) error {
	return Errors(Run(ctx, tasks, limit))
}

// Errors combines the failed results, in order, or returns nil.
func Errors(results []Result) error {
	var merr *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return merr.ErrorOrNil()
}

// Failed returns the names of the failed results.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if r.Err != nil {
			names = append(names, r.Name)
		}
	}
	return names
}

// Succeeded returns the names of the successful results.
func Succeeded(results []Result) []string {
	var names []string
	for _, r := range results {
		if r.Err == nil {
			names = append(names, r.Name)
		}
	}
	return names
}
