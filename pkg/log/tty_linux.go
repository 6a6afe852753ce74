//go:build linux

package log

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TCGETS
