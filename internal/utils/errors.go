package utils

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"sync"
	"syscall"

	"google.golang.org/api/googleapi"
)

type temporary interface{ Temporary() bool }

type errTmp struct{ error }

func (t errTmp) Temporary() bool { return true }
func (t errTmp) Unwrap() error   { return t.error }

// MakeTemporary marks err as transient: the operation may be retried
func MakeTemporary(err error) error {
	if err == nil {
		return nil
	}
	return errTmp{err}
}

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		return gapiError.Code == 429 || (gapiError.Code >= 500 && gapiError.Code < 600)
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

// ErrWaitGroup is a collection of goroutines working on subtasks that are part of the same overall task.
// Unlike errgroup.Group, every error is kept.
type ErrWaitGroup struct {
	wg sync.WaitGroup

	errMutex sync.Mutex
	errs     []error
}

// Go calls the given function in a new goroutine.
func (g *ErrWaitGroup) Go(f func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.AppendError(f())
	}()
}

// AppendError records err (if not nil)
func (g *ErrWaitGroup) AppendError(err error) {
	if err == nil {
		return
	}
	g.errMutex.Lock()
	g.errs = append(g.errs, err)
	g.errMutex.Unlock()
}

// Wait blocks until all function calls from the Go method have returned, then
// returns all the non-nil error (if any) from them.
func (g *ErrWaitGroup) Wait() []error {
	g.wg.Wait()
	return g.errs
}

// MergeErrors merges newErrs into err, appending texts.
// if priorityToError is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	for _, newErr := range newErrs {
		switch {
		case err == nil:
			err = newErr
		case newErr == nil:
			if !priorityToError {
				err = nil
			}
		case priorityToError != Temporary(newErr):
			err = fmt.Errorf("%w\n %v", newErr, err)
		default:
			err = fmt.Errorf("%w\n %v", err, newErr)
		}
	}
	return err
}
