package storage

import (
	"time"
	capnp "zombiezen.com/go/capnproto2"
)

// Meter records are a single capnp struct:
//   data:     building @0, instance @8, period (ns) @16, site bit @192
//   pointers: label @0
var meterObjectSize = capnp.ObjectSize{DataSize: 32, PointerCount: 1}

// Section lists are a struct holding one Int64List of start/end pairs in
// unix nanoseconds.
var sectionsObjectSize = capnp.ObjectSize{DataSize: 0, PointerCount: 1}

func MeterToBytes(meter Meter) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	root, err := capnp.NewRootStruct(seg, meterObjectSize)
	if err != nil {
		return nil, err
	}
	root.SetUint64(0, uint64(meter.Building))
	root.SetUint64(8, uint64(meter.Instance))
	root.SetUint64(16, uint64(meter.SamplePeriod))
	root.SetBit(192, meter.Site)
	if err := root.SetText(0, meter.Label); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func BytesToMeter(buf []byte) (Meter, error) {
	msg, err := capnp.Unmarshal(buf)
	if err != nil {
		return Meter{}, err
	}
	ptr, err := msg.RootPtr()
	if err != nil {
		return Meter{}, err
	}
	root := ptr.Struct()
	label, err := root.Ptr(0)
	if err != nil {
		return Meter{}, err
	}
	return Meter{
		Building:     int(int64(root.Uint64(0))),
		Instance:     int(int64(root.Uint64(8))),
		SamplePeriod: time.Duration(root.Uint64(16)),
		Site:         root.Bit(192),
		Label:        label.Text(),
	}, nil
}

func SectionsToBytes(sections []Section) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	root, err := capnp.NewRootStruct(seg, sectionsObjectSize)
	if err != nil {
		return nil, err
	}
	bounds, err := capnp.NewInt64List(seg, int32(2*len(sections)))
	if err != nil {
		return nil, err
	}
	for i, section := range sections {
		bounds.Set(2*i, section.Start.UnixNano())
		bounds.Set(2*i+1, section.End.UnixNano())
	}
	if err := root.SetPtr(0, bounds.List.ToPtr()); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func BytesToSections(buf []byte) ([]Section, error) {
	msg, err := capnp.Unmarshal(buf)
	if err != nil {
		return nil, err
	}
	ptr, err := msg.RootPtr()
	if err != nil {
		return nil, err
	}
	listPtr, err := ptr.Struct().Ptr(0)
	if err != nil {
		return nil, err
	}
	bounds := capnp.Int64List{List: listPtr.List()}
	sections := make([]Section, bounds.Len()/2)
	for i := range sections {
		sections[i] = Section{
			Start: time.Unix(0, bounds.At(2*i)).UTC(),
			End:   time.Unix(0, bounds.At(2*i+1)).UTC(),
		}
	}
	return sections, nil
}
