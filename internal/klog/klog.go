// Package klog is the kernel's logging façade: a thin wrapper over
// zap that plays the role of the teacher kernel's fmt.Printf-based
// boot banners and dump routines (netdump, sizedump, thread_print_stats)
// now that the kernel is hosted rather than freestanding and can afford
// a structured logger.
package klog

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var base *zap.Logger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// Sub returns a subsystem-scoped sugared logger, e.g. klog.Sub("vm").
func Sub(subsystem string) *zap.SugaredLogger {
	return base.Sugar().With("subsys", subsystem)
}

// Boot logs the boot banner, mirroring the source kernel's startup
// prints (and its "-o mlfqs" command line echo in thread.c).
func Boot(mlfqs bool) uuid.UUID {
	bootID := uuid.New()
	base.Sugar().Infow("booting kernel",
		"boot_id", bootID.String(),
		"mlfqs", mlfqs,
	)
	return bootID
}

// PanicInfo is a kernel panic report: thread name plus the call site
// of the failed assertion.
type PanicInfo struct {
	Thread string
	File   string
	Line   int
}

// Panic logs an error-level structured record and then panics, the hosted
// equivalent of the source kernel's PANIC() macro.
func Panic(info PanicInfo, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	base.Sugar().Errorw("kernel panic",
		"thread", info.Thread,
		"file", info.File,
		"line", info.Line,
		"msg", msg,
	)
	panic(fmt.Sprintf("%s:%d [%s] %s", info.File, info.Line, info.Thread, msg))
}

// Sync flushes buffered log entries; callers should defer this in main.
func Sync() {
	_ = base.Sync()
}
