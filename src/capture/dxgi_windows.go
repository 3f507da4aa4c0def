//go:build windows

package capture

import (
	"fmt"
	"time"
	"unsafe"

	"tooltip-ocr/src/window"
)

const (
	dxgiDeviceGetAdapter        = 7
	dxgiAdapterEnumOutputs      = 7
	dxgiOutputGetDesc           = 7
	dxgiOutput1DuplicateOutput  = 22
	dxgiDuplicationAcquireNext  = 8
	dxgiDuplicationReleaseFrame = 14
)

type outputDesc struct {
	DeviceName        [32]uint16
	Left, Top         int32
	Right, Bottom     int32
	AttachedToDesktop int32
	Rotation          uint32
	Monitor           uintptr
}

type outduplFrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerX, PointerY        int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// dxgiDuplicator owns a device and the duplication of one output.
type dxgiDuplicator struct {
	dev     *d3dDevice
	dupl    unsafe.Pointer
	desktop window.Bounds
}

// openDXGIDuplicator creates a new device and duplicates the output showing
// monitor. Any partial state is released on failure.
func openDXGIDuplicator(monitor uintptr) (Duplicator, error) {
	dev, err := newD3DDevice()
	if err != nil {
		return nil, err
	}
	d := &dxgiDuplicator{dev: dev}
	if err := d.bind(monitor); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *dxgiDuplicator) bind(monitor uintptr) error {
	dxgiDevice, err := comQuery(d.dev.device, iidIDXGIDevice, "QueryInterface(IDXGIDevice)")
	if err != nil {
		return err
	}
	defer comRelease(dxgiDevice)

	var adapter unsafe.Pointer
	if err := checkHR("GetAdapter", comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter)))); err != nil {
		return err
	}
	defer comRelease(adapter)

	var output unsafe.Pointer
	var desc outputDesc
	for i := uintptr(0); ; i++ {
		var out unsafe.Pointer
		hr := comCall(adapter, dxgiAdapterEnumOutputs, i, uintptr(unsafe.Pointer(&out)))
		if uint32(hr) == hrDXGINotFound {
			break
		}
		if err := checkHR("EnumOutputs", hr); err != nil {
			return err
		}
		var od outputDesc
		comCall(out, dxgiOutputGetDesc, uintptr(unsafe.Pointer(&od)))
		if od.Monitor == monitor || (monitor == 0 && od.AttachedToDesktop != 0) {
			output, desc = out, od
			break
		}
		comRelease(out)
	}
	if output == nil {
		return fmt.Errorf("monitor %#x is not driven by the default adapter", monitor)
	}
	defer comRelease(output)

	output1, err := comQuery(output, iidIDXGIOutput1, "QueryInterface(IDXGIOutput1)")
	if err != nil {
		return err
	}
	defer comRelease(output1)

	hr := comCall(output1, dxgiOutput1DuplicateOutput, uintptr(d.dev.device), uintptr(unsafe.Pointer(&d.dupl)))
	if err := checkHR("DuplicateOutput", hr); err != nil {
		return err
	}
	d.desktop = window.Bounds{
		X:      int(desc.Left),
		Y:      int(desc.Top),
		Width:  int(desc.Right - desc.Left),
		Height: int(desc.Bottom - desc.Top),
	}
	return nil
}

func (d *dxgiDuplicator) Acquire(timeout time.Duration) (*Frame, error) {
	var info outduplFrameInfo
	var resource unsafe.Pointer
	hr := comCall(d.dupl, dxgiDuplicationAcquireNext,
		uintptr(timeout/time.Millisecond),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&resource)))
	if err := checkHR("AcquireNextFrame", hr); err != nil {
		return nil, err
	}
	defer comCall(d.dupl, dxgiDuplicationReleaseFrame)
	defer comRelease(resource)

	tex, err := comQuery(resource, iidID3D11Texture2D, "QueryInterface(ID3D11Texture2D)")
	if err != nil {
		return nil, err
	}
	defer comRelease(tex)
	return d.dev.readTexture(tex)
}

func (d *dxgiDuplicator) Desktop() window.Bounds { return d.desktop }

func (d *dxgiDuplicator) Close() error {
	comRelease(d.dupl)
	d.dupl = nil
	if d.dev != nil {
		d.dev.Release()
		d.dev = nil
	}
	return nil
}
