package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// InvalidCronError reports an expression cronexpr cannot parse.
type InvalidCronError struct {
	Expr string
	Err  error
}

func (e *InvalidCronError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *InvalidCronError) Unwrap() error {
	return e.Err
}

var _ error = (*InvalidCronError)(nil)

func parse(cron string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, &InvalidCronError{Expr: cron, Err: err}
	}
	return expr, nil
}

// NextRunTimesAfter returns the n run times of cron strictly after the given
// time, in its location.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0, got %d", n)
	}
	expr, err := parse(cron)
	if err != nil {
		return nil, err
	}
	times := expr.NextN(after, uint(n))
	if len(times) == 0 {
		return nil, fmt.Errorf("cron expression %q never runs after %s", cron, after)
	}
	return times, nil
}

// ValidateCron reports whether cron parses. The error is an
// *InvalidCronError.
func ValidateCron(cron string) error {
	_, err := parse(cron)
	return err
}
