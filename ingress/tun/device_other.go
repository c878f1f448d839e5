//go:build !linux

package tun

import "io"

func open(name string) (io.ReadWriteCloser, error) {
	return nil, errNotSupported
}
