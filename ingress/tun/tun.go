package tun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/rewrite"
	"github.com/intxff/rdseg/util"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_ int32 = iota
	Ready
	Running
	Closed
)

const defaultMTU = 1500

var errNotSupported = errors.New("not supported")

// Tun rewrites every packet read from a tun device and writes the result
// back to the same device.
type Tun struct {
	name   string
	mtu    int
	cidr   *net.IPNet
	ip     net.IP
	dev    io.ReadWriteCloser
	status atomic.Int32
}

func NewTun(name, iprange string, mtu int) (*Tun, error) {
	t := &Tun{}
	if err := initTun(t, name, iprange, mtu); err != nil {
		return nil, err
	}
	return t, nil
}

func initTun(t *Tun, name, iprange string, mtu int) error {
	if name == "" {
		return errors.New("tun: empty device name")
	}
	ip, cidr, err := net.ParseCIDR(iprange)
	if err != nil {
		return err
	}
	if mtu <= 0 {
		mtu = defaultMTU
	}

	t.name = name
	t.mtu = mtu
	t.cidr = cidr
	t.ip = ip
	t.status.Store(Ready)
	return nil
}

func (t *Tun) logString(s string) string {
	return fmt.Sprintf("[Tun] %v: %v", t.name, s)
}

func (t *Tun) Name() string {
	return t.name
}

func (t *Tun) MTU() int {
	return t.mtu
}

func (t *Tun) setup() error {
	ones, _ := t.cidr.Mask.Size()
	addr := t.ip.String() + "/" + strconv.Itoa(ones)
	cmd := []string{
		fmt.Sprintf("ip addr add %v dev %v", addr, t.Name()),
		fmt.Sprintf("ip link set dev %v mtu %v", t.Name(), t.mtu),
		fmt.Sprintf("ip link set dev %v up", t.Name()),
	}
	for _, v := range cmd {
		if _, err := util.ExecCmd(v); err != nil {
			return fmt.Errorf("%v: %w", v, err)
		}
	}
	return nil
}

// Close stops Run. It is safe to call more than once.
func (t *Tun) Close() error {
	if !t.status.CompareAndSwap(Running, Closed) {
		t.status.Store(Closed)
		return nil
	}
	log.Info(t.logString("closed"))
	if t.dev != nil {
		return t.dev.Close()
	}
	return nil
}

// Run opens and configures the device, then rewrites packets until ctx is
// done or Close is called.
func (t *Tun) Run(ctx context.Context, rw *rewrite.Rewriter) error {
	log.Info(t.logString("starting..."))

	dev, err := open(t.name)
	if err != nil {
		return fmt.Errorf("open %v: %w", t.name, err)
	}
	t.dev = dev
	log.Info(t.logString("device opened"))

	if err = t.setup(); err != nil {
		dev.Close()
		return fmt.Errorf("setup %v: %w", t.name, err)
	}
	log.Info(t.logString("device setup done"))

	t.status.Store(Running)
	go func() {
		<-ctx.Done()
		t.Close()
	}()
	return t.serve(dev, rw)
}

func (t *Tun) serve(dev io.ReadWriter, rw *rewrite.Rewriter) error {
	log.Info(t.logString("processing ip packets"))
	buffer := make([]byte, t.mtu)
	for {
		n, err := dev.Read(buffer)
		if err != nil {
			if t.status.Load() != Running || errors.Is(err, io.EOF) {
				return nil
			}
			log.Error(t.logString("failed to read from device"),
				zap.Error(err))
			continue
		}

		out, verdict, err := rw.Process(buffer[:n])
		if err != nil {
			log.Debug(t.logString("packet passed unmodified"), zap.Error(err))
		}
		if verdict == rewrite.VerdictDrop {
			continue
		}

		wn, err := dev.Write(out)
		if err != nil {
			log.Error(t.logString("failed to write to device"),
				zap.Error(err))
			continue
		}
		if wn < len(out) {
			log.Error(t.logString("short written to device"))
		}
	}
}

func (t *Tun) UnmarshalYAML(value *yaml.Node) error {
	var (
		name string
		cidr string
		mtu  int
		err  error
	)
	temp := make(map[string]any)
	err = value.Decode(&temp)
	if err != nil {
		return err
	}

	attrMust := map[string]any{
		"name": &name,
		"cidr": &cidr,
	}
	err = util.MustHave(temp, attrMust)
	if err != nil {
		return err
	}
	attrMay := map[string]any{
		"mtu": &mtu,
	}
	err = util.MayHave(temp, attrMay)
	if err != nil {
		return err
	}

	return initTun(t, name, cidr, mtu)
}
