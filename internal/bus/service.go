package bus

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// rootIface is the tree-wide root object's interface (GetValue/GetText
// across the whole subtree plus an ItemsChanged signal), mirroring the
// platform convention of a root object alongside per-path leaves.
const rootIface = "com.victronenergy.BusItem"

// evChargerIface is the hard-coded aggregate interface a host energy
// management platform queries directly, instead of walking the path
// tree leaf by leaf (spec §4.5's "device-type aggregate").
const evChargerIface = "com.victronenergy.evcharger"

// Service publishes a Store's path tree on a D-Bus connection as a
// lazily-exported object per leaf path, plus a root object and a
// hard-coded EV-charger aggregate interface (spec §4.5/§6).
type Service struct {
	store        *Store
	commands     CommandSink
	vendorPrefix string
	instance     int
	logger       *log.Logger

	conn *dbus.Conn

	mu        sync.Mutex
	exported  map[string]struct{}
	rootDone  bool
	aggDone   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewService constructs a Service. Connect must be called before Run.
func NewService(store *Store, commands CommandSink, vendorPrefix string, instance int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:        store,
		commands:     commands,
		vendorPrefix: vendorPrefix,
		instance:     instance,
		logger:       logger,
		exported:     make(map[string]struct{}),
	}
}

// ServiceName returns the well-known bus name this service requests,
// "<vendor>.evcharger.<instance>" per spec §4.5.
func (s *Service) ServiceName() string {
	return fmt.Sprintf("%s.evcharger.%d", s.vendorPrefix, s.instance)
}

// Connect dials the system bus, falling back to the session bus when
// useSessionFallback is set and the system bus is unreachable. When
// requireBus is true and no bus can be reached, Connect returns an
// error; otherwise the Service degrades to a no-op (store still works,
// nothing is published).
func (s *Service) Connect(requireBus, useSessionFallback bool) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		s.logger.Printf("bus: system bus unavailable: %v", err)
		if useSessionFallback {
			conn, err = dbus.ConnectSessionBus()
			if err != nil {
				s.logger.Printf("bus: session bus also unavailable: %v", err)
			}
		}
	}
	if conn == nil {
		if requireBus {
			return fmt.Errorf("bus: no message bus reachable and require_bus is set")
		}
		s.logger.Printf("bus: continuing without a message bus (require_bus is false)")
		return nil
	}

	name := s.ServiceName()
	reply, err := conn.RequestName(name, dbus.NameFlagReplaceExisting)
	if err != nil {
		conn.Close()
		if requireBus {
			return fmt.Errorf("bus: request name %s: %w", name, err)
		}
		s.logger.Printf("bus: could not request name %s: %v", name, err)
		return nil
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		conn.Close()
		if requireBus {
			return fmt.Errorf("bus: name %s already owned elsewhere (reply=%d)", name, reply)
		}
		s.logger.Printf("bus: name %s already owned elsewhere (reply=%d)", name, reply)
		return nil
	}

	s.conn = conn
	s.exportRoot()
	s.exportAggregate()
	for _, p := range s.store.Paths() {
		s.exportItem(p)
	}
	s.logger.Printf("bus: published as %s", name)
	return nil
}

// Connected reports whether a live bus connection is held.
func (s *Service) Connected() bool { return s.conn != nil }

func (s *Service) exportItem(path string) {
	if s.conn == nil {
		return
	}
	s.mu.Lock()
	if _, ok := s.exported[path]; ok {
		s.mu.Unlock()
		return
	}
	s.exported[path] = struct{}{}
	s.mu.Unlock()

	obj := &item{path: path, svc: s}
	if err := s.conn.Export(obj, dbus.ObjectPath(path), busItemIface); err != nil {
		s.logger.Printf("bus: export %s: %v", path, err)
	}
}

func (s *Service) exportRoot() {
	if s.conn == nil || s.rootDone {
		return
	}
	s.rootDone = true
	r := &rootObject{svc: s}
	if err := s.conn.Export(r, "/", rootIface); err != nil {
		s.logger.Printf("bus: export root: %v", err)
	}
}

func (s *Service) exportAggregate() {
	if s.conn == nil || s.aggDone {
		return
	}
	s.aggDone = true
	agg := &evCharger{svc: s}
	if err := s.conn.Export(agg, "/", evChargerIface); err != nil {
		s.logger.Printf("bus: export aggregate: %v", err)
	}
}

// Run consumes the store's change-event stream and emits the
// corresponding D-Bus signals until Stop is called. It lazily exports
// any path not already on the bus (new paths can appear after startup,
// e.g. optional EMS collaborator readings).
func (s *Service) Run() {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	ch, cancel := s.store.Subscribe(64)
	defer close(s.doneCh)
	defer cancel()

	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.exportItem(ev.Path)
			s.emitChanged(ev)
		}
	}
}

// Stop ends Run and waits for it to return.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Service) emitChanged(ev ChangeEvent) {
	if s.conn == nil {
		return
	}
	variant := dbus.MakeVariant(ev.Value.Any())
	changes := map[string]dbus.Variant{"Value": variant, "Text": dbus.MakeVariant(ev.Text)}
	if err := s.conn.Emit(dbus.ObjectPath(ev.Path), busItemIface+".PropertiesChanged", changes); err != nil {
		s.logger.Printf("bus: emit PropertiesChanged %s: %v", ev.Path, err)
	}
	items := map[string]map[string]dbus.Variant{
		ev.Path: {"Value": variant, "Text": dbus.MakeVariant(ev.Text)},
	}
	if err := s.conn.Emit("/", rootIface+".ItemsChanged", items); err != nil {
		s.logger.Printf("bus: emit ItemsChanged: %v", err)
	}
}

// rootObject is the tree-wide root leaf: GetValue/GetText answer with
// the whole subtree, and GetItems enumerates every path for clients
// that enumerate once at startup instead of walking the tree.
type rootObject struct {
	svc *Service
}

func (r *rootObject) GetValue() (map[string]dbus.Variant, *dbus.Error) {
	snap := r.svc.store.SnapshotAll()
	out := make(map[string]dbus.Variant, len(snap))
	for path, v := range snap {
		out[strings.TrimPrefix(path, "/")] = dbus.MakeVariant(v.Any())
	}
	return out, nil
}

func (r *rootObject) GetText() (string, *dbus.Error) {
	return "evcharger", nil
}

func (r *rootObject) GetItems() (map[string]map[string]dbus.Variant, *dbus.Error) {
	snap := r.svc.store.SnapshotAll()
	out := make(map[string]map[string]dbus.Variant, len(snap))
	for path, v := range snap {
		out[path] = map[string]dbus.Variant{
			"Value": dbus.MakeVariant(v.Any()),
			"Text":  dbus.MakeVariant(v.Text()),
		}
	}
	return out, nil
}

// evCharger is the hard-coded aggregate interface exposing the handful
// of properties a host EMS actually polls/sets on an EV charger,
// instead of walking the generic path tree (spec §4.5).
type evCharger struct {
	svc *Service
}

func (e *evCharger) get(path string) float64 {
	v, ok := e.svc.store.Get(path)
	if !ok {
		return 0
	}
	f, _ := v.AsFloat64()
	return f
}

func (e *evCharger) GetMode() (int32, *dbus.Error)       { return int32(e.get("/Mode")), nil }
func (e *evCharger) GetStartStop() (int32, *dbus.Error)  { return int32(e.get("/StartStop")), nil }
func (e *evCharger) GetSetCurrent() (float64, *dbus.Error) { return e.get("/SetCurrent"), nil }
func (e *evCharger) GetCurrent() (float64, *dbus.Error)  { return e.get("/Ac/Current"), nil }
func (e *evCharger) GetPower() (float64, *dbus.Error)    { return e.get("/Ac/Power"), nil }
func (e *evCharger) GetPhases() (int32, *dbus.Error)     { return int32(e.get("/Ac/NumberOfPhases")), nil }
func (e *evCharger) GetStatus() (int32, *dbus.Error)     { return int32(e.get("/Status")), nil }

func (e *evCharger) SetMode(mode int32) (int32, *dbus.Error) {
	normalized := NormalizeMode(Int(int64(mode)))
	e.svc.store.Set("/Mode", normalized)
	e.svc.dispatchCommand("/Mode", normalized)
	return 0, nil
}

func (e *evCharger) SetStartStop(v int32) (int32, *dbus.Error) {
	normalized := NormalizeStartStop(Int(int64(v)))
	e.svc.store.Set("/StartStop", normalized)
	e.svc.dispatchCommand("/StartStop", normalized)
	return 0, nil
}

func (e *evCharger) SetSetCurrent(amps float64) (int32, *dbus.Error) {
	e.svc.store.Set("/SetCurrent", Float(amps))
	e.svc.dispatchCommand("/SetCurrent", Float(amps))
	return 0, nil
}
