//go:build linux

package element

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// AT-SPI2 names. The accessibility bus is separate from the session bus;
// its address is published by org.a11y.Bus on the session bus.
const (
	a11yBusName     = "org.a11y.Bus"
	a11yBusPath     = dbus.ObjectPath("/org/a11y/bus")
	a11yStatusIface = "org.a11y.Status"
	atspiRegistry   = "org.a11y.atspi.Registry"
	atspiRootPath   = dbus.ObjectPath("/org/a11y/atspi/accessible/root")
	ifaceAccessible = "org.a11y.atspi.Accessible"
	ifaceText       = "org.a11y.atspi.Text"
	ifaceEditable   = "org.a11y.atspi.EditableText"
	ifaceProperties = "org.freedesktop.DBus.Properties"
	coordTypeScreen = uint32(0)
	stateActive     = 1
	stateEditable   = 7
	stateFocused    = 12
	stateShowing    = 25
	wholeTextEnd    = int32(-1)
)

// accessibilityStatus returns the session bus object holding the
// org.a11y.Status properties.
func accessibilityStatus() (dbus.BusObject, error) {
	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	return session.Object(a11yBusName, a11yBusPath), nil
}

// AccessibilityEnabled reports whether AT-SPI is switched on for the
// session.
func AccessibilityEnabled(ctx context.Context) (bool, error) {
	obj, err := accessibilityStatus()
	if err != nil {
		return false, err
	}
	v, err := getProperty(ctx, obj, a11yStatusIface, "IsEnabled")
	if err != nil {
		return false, err
	}
	enabled, ok := v.Value().(bool)
	return ok && enabled, nil
}

// EnableAccessibility asks the session to switch AT-SPI on. Toolkits pick
// the change up for newly focused windows.
func EnableAccessibility(ctx context.Context) error {
	obj, err := accessibilityStatus()
	if err != nil {
		return err
	}
	return obj.CallWithContext(ctx, ifaceProperties+".Set", 0,
		a11yStatusIface, "IsEnabled", dbus.MakeVariant(true)).Err
}

// a11yBus holds one lazily dialed connection to the accessibility bus.
type a11yBus struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (b *a11yBus) get(ctx context.Context) (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn.Connected() {
		return b.conn, nil
	}

	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	var addr string
	if err := session.Object(a11yBusName, a11yBusPath).
		CallWithContext(ctx, a11yBusName+".GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("accessibility bus address: %w", err)
	}
	conn, err := dbus.Connect(addr, dbus.WithContext(context.Background()))
	if err != nil {
		return nil, fmt.Errorf("connect accessibility bus: %w", err)
	}
	b.conn = conn
	return conn, nil
}

func (b *a11yBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func getProperty(ctx context.Context, obj dbus.BusObject, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, ifaceProperties+".Get", 0, iface, name).Store(&v)
	return v, err
}

// accessibleRef is the (bus name, object path) pair AT-SPI uses for
// references.
type accessibleRef struct {
	Name string
	Path dbus.ObjectPath
}

func (r accessibleRef) null() bool {
	return r.Path == "" || r.Path == "/org/a11y/atspi/null"
}

type stateSet []uint32

func (s stateSet) has(state int) bool {
	i := state / 32
	return i < len(s) && s[i]&(1<<(uint(state)%32)) != 0
}

func children(ctx context.Context, obj dbus.BusObject) ([]accessibleRef, error) {
	var refs []accessibleRef
	err := obj.CallWithContext(ctx, ifaceAccessible+".GetChildren", 0).Store(&refs)
	return refs, err
}

func states(ctx context.Context, obj dbus.BusObject) (stateSet, error) {
	var s []uint32
	err := obj.CallWithContext(ctx, ifaceAccessible+".GetState", 0).Store(&s)
	return stateSet(s), err
}
