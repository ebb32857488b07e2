package microkern

import (
	"github.com/joeycumines/logiface"
)

// kernelOptions holds configuration options for Kernel creation.
type kernelOptions struct {
	tps            uint32
	idleStackWords int
	logger         *logiface.Logger[logiface.Event]
	sanity         SanityChecker
	arch           Arch
	debugMode      bool
}

// Option configures a Kernel instance.
type Option interface {
	apply(*kernelOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*kernelOptions) error
}

func (o *optionImpl) apply(opts *kernelOptions) error {
	return o.applyFunc(opts)
}

// WithTicksPerSecond sets the tick rate used for all tick↔time
// conversions. The default is 1000, making millisecond conversions
// the identity. Zero is invalid.
func WithTicksPerSecond(tps uint32) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if tps == 0 {
			return ErrInvalidParam
		}
		opts.tps = tps
		return nil
	}}
}

// WithLogger sets the structured logger used for kernel lifecycle and
// task events. A nil logger disables logging entirely; logiface
// loggers are nil-receiver safe, so this carries no overhead on hot
// paths.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSanityChecker sets the external sanity-check subsystem that task
// sanity records are registered with.
func WithSanityChecker(sc SanityChecker) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.sanity = sc
		return nil
	}}
}

// WithArch overrides the architecture capability. The default backs
// each task with a goroutine; tests may substitute a recording
// implementation.
func WithArch(a Arch) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if a == nil {
			return ErrInvalidParam
		}
		opts.arch = a
		return nil
	}}
}

// WithIdleStackSize sets the size, in words, of the stack the kernel
// allocates for its own idle task. The default is 64.
func WithIdleStackSize(words int) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		if words <= 0 {
			return ErrInvalidParam
		}
		opts.idleStackWords = words
		return nil
	}}
}

// WithDebugMode controls how programming errors are reported. In debug
// mode, invariant violations such as a duplicate priority at TaskInit
// or a double-registered listener panic; otherwise the public contract
// returns ErrInvalidParam.
func WithDebugMode(enabled bool) Option {
	return &optionImpl{func(opts *kernelOptions) error {
		opts.debugMode = enabled
		return nil
	}}
}

// resolveOptions applies Option instances over the defaults.
func resolveOptions(opts []Option) (*kernelOptions, error) {
	cfg := &kernelOptions{
		tps:            1000,
		idleStackWords: 64,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
