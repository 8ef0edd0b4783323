package bus

import "github.com/godbus/dbus/v5"

// busItemIface is the platform's standard "bus item" leaf interface
// name, published at every mirrored path (spec §4.5/§6).
const busItemIface = "com.victronenergy.BusItem"

// item is the D-Bus-exported object backing one leaf path. It never
// emits signals itself (per spec §9's "clone connection handle, not
// its own connection" note); Service.Run owns emission after releasing
// the store lock.
type item struct {
	path string
	svc  *Service
}

// GetValue implements com.victronenergy.BusItem.GetValue.
func (it *item) GetValue() (dbus.Variant, *dbus.Error) {
	v, ok := it.svc.store.Get(it.path)
	if !ok {
		v = Int(0)
	}
	return dbus.MakeVariant(v.Any()), nil
}

// SetValue implements com.victronenergy.BusItem.SetValue, returning
// 0=ok, 1=readonly per spec §6.
func (it *item) SetValue(value dbus.Variant) (int32, *dbus.Error) {
	if !it.svc.store.IsWritable(it.path) {
		return 1, nil
	}
	v := fromVariant(value)
	normalized := NormalizeForPath(it.path, v)
	it.svc.store.Set(it.path, normalized)
	it.svc.dispatchCommand(it.path, normalized)
	return 0, nil
}

// GetText implements com.victronenergy.BusItem.GetText.
func (it *item) GetText() (string, *dbus.Error) {
	v, ok := it.svc.store.Get(it.path)
	if !ok {
		v = Int(0)
	}
	return v.Text(), nil
}

func fromVariant(value dbus.Variant) Value {
	switch x := value.Value().(type) {
	case bool:
		return Bool(x)
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint16:
		return Uint(uint64(x))
	case uint32:
		return Uint(uint64(x))
	case uint64:
		return Uint(x)
	case float64:
		return Float(x)
	case string:
		return Str(x)
	default:
		return Int(0)
	}
}

func (s *Service) dispatchCommand(path string, v Value) {
	if s.commands == nil {
		return
	}
	switch path {
	case "/Mode":
		if i, ok := v.AsFloat64(); ok {
			s.commands.Enqueue(Command{Kind: CommandSetMode, ModeValue: int(i)})
		}
	case "/StartStop":
		if i, ok := v.AsFloat64(); ok {
			s.commands.Enqueue(Command{Kind: CommandSetStartStop, StartStop: int(i)})
		}
	case "/SetCurrent":
		if f, ok := v.AsFloat64(); ok {
			s.commands.Enqueue(Command{Kind: CommandSetCurrent, CurrentA: float32(f)})
		}
	}
}
