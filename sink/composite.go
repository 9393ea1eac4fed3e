package sink

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-detect/frame"
)

// Composite fans frames out to an ordered list of sinks.
type Composite struct {
	children []Sink

	closeOnce sync.Once
	closeErr  error
}

// NewComposite creates a composite over children, which are opened, fed and closed in
// the order given.
func NewComposite(children ...Sink) *Composite {
	return &Composite{children: children}
}

// Children returns the wrapped sinks.
func (c *Composite) Children() []Sink {
	return c.children
}

func (c *Composite) String() string {
	names := make([]string, len(c.children))
	for i, child := range c.children {
		names[i] = child.String()
	}
	return "composite sink [" + strings.Join(names, ", ") + "]"
}

// Open opens every child in order. If one fails, the children already opened are closed
// again and the open error is returned together with any close errors.
func (c *Composite) Open() error {
	if len(c.children) == 0 {
		return errors.New("composite sink has no children")
	}
	for i, child := range c.children {
		if err := child.Open(); err != nil {
			for j := i - 1; j >= 0; j-- {
				err = multierr.Append(err, c.children[j].Close())
			}
			return err
		}
	}
	return nil
}

// Emit forwards the frame to every child, even after one fails, and returns the combined
// errors.
func (c *Composite) Emit(f frame.Frame) error {
	var err error
	for _, child := range c.children {
		err = multierr.Append(err, child.Emit(f))
	}
	return err
}

// Close closes every child in order, even after one fails, and returns the combined
// errors. Only the first call does any work.
func (c *Composite) Close() error {
	c.closeOnce.Do(func() {
		for _, child := range c.children {
			c.closeErr = multierr.Append(c.closeErr, child.Close())
		}
	})
	return c.closeErr
}
