// Package lifecycle runs ordered startup steps and releases what they
// acquired in reverse order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/githubalerts/pkg/logger"
)

// Release undoes one acquisition.
type Release func(ctx context.Context) error

// Stack holds the release functions of acquired resources.
type Stack struct {
	mu       sync.Mutex
	names    []string
	releases []Release
}

// Acquire runs acquire and, on success, pushes its release. On failure every
// resource acquired so far is released, newest first, and the acquire error
// is returned together with any release errors.
func (s *Stack) Acquire(ctx context.Context, name string, acquire func(ctx context.Context) (Release, error)) error {
	release, err := acquire(ctx)
	if err != nil {
		err = fmt.Errorf("acquire %s: %w", name, err)
		logger.Error().Err(err).Msg("Startup failed, releasing acquired resources")
		return errors.Join(err, s.Release(ctx))
	}
	s.Push(name, release)
	logger.Debug().Str("resource", name).Msg("Resource acquired")
	return nil
}

// Push records an already acquired resource.
func (s *Stack) Push(name string, release Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if release == nil {
		release = func(context.Context) error { return nil }
	}
	s.names = append(s.names, name)
	s.releases = append(s.releases, release)
}

// Release runs every release function, newest first, once. All functions
// run even when some fail; the failures are joined.
func (s *Stack) Release(ctx context.Context) error {
	s.mu.Lock()
	names, releases := s.names, s.releases
	s.names, s.releases = nil, nil
	s.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i](ctx); err != nil {
			logger.Error().Err(err).Str("resource", names[i]).Msg("Release failed")
			errs = append(errs, fmt.Errorf("release %s: %w", names[i], err))
			continue
		}
		logger.Debug().Str("resource", names[i]).Msg("Resource released")
	}
	return errors.Join(errs...)
}

// Len reports how many resources are held.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}
