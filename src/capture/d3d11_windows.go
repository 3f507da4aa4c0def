//go:build windows

package capture

import (
	"fmt"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	d3d11 = windows.NewLazySystemDLL("d3d11.dll")

	procD3D11CreateDevice                    = d3d11.NewProc("D3D11CreateDevice")
	procCreateDirect3D11DeviceFromDXGIDevice = d3d11.NewProc("CreateDirect3D11DeviceFromDXGIDevice")

	iidIDXGIDevice     = ole.NewGUID("{54EC77FA-1377-44E6-8C32-88FD5F44C84C}")
	iidIDXGIOutput1    = ole.NewGUID("{00CDDEA8-939B-4B83-A340-A685226666CC}")
	iidID3D11Texture2D = ole.NewGUID("{6F15AAF2-D208-4E89-9AB4-489535D34F9C}")
)

const (
	d3dDriverTypeHardware  = 1
	d3d11CreateDeviceBGRA  = 0x20
	d3d11SDKVersion        = 7
	d3d11UsageStaging      = 3
	d3d11CPUAccessRead     = 0x20000
	d3d11MapRead           = 1
	dxgiFormatB8G8R8A8     = 87
	dxgiFormatB8G8R8A8SRGB = 91

	// vtable slots
	d3dDeviceCreateTexture2D = 5
	d3dContextMap            = 14
	d3dContextUnmap          = 15
	d3dContextCopyResource   = 47
	d3dTexture2DGetDesc      = 10
)

type texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32
	SampleQuality  uint32
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

type mappedSubresource struct {
	PData      unsafe.Pointer
	RowPitch   uint32
	DepthPitch uint32
}

// d3dDevice owns an ID3D11Device and its immediate context.
type d3dDevice struct {
	device  unsafe.Pointer
	context unsafe.Pointer
}

func newD3DDevice() (*d3dDevice, error) {
	if err := procD3D11CreateDevice.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	d := &d3dDevice{}
	hr, _, _ := procD3D11CreateDevice.Call(
		0,
		d3dDriverTypeHardware,
		0,
		d3d11CreateDeviceBGRA,
		0, 0,
		d3d11SDKVersion,
		uintptr(unsafe.Pointer(&d.device)),
		0,
		uintptr(unsafe.Pointer(&d.context)),
	)
	if err := checkHR("D3D11CreateDevice", hr); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *d3dDevice) Release() {
	comRelease(d.context)
	comRelease(d.device)
	d.context, d.device = nil, nil
}

// readTexture copies tex into a CPU-readable staging texture, maps it and
// deep-copies the pixels. The mapping is released on every path.
func (d *d3dDevice) readTexture(tex unsafe.Pointer) (*Frame, error) {
	var desc texture2DDesc
	comCall(tex, d3dTexture2DGetDesc, uintptr(unsafe.Pointer(&desc)))
	if desc.Format != dxgiFormatB8G8R8A8 && desc.Format != dxgiFormatB8G8R8A8SRGB {
		return nil, fmt.Errorf("unsupported surface format %d", desc.Format)
	}

	sd := desc
	sd.MipLevels, sd.ArraySize = 1, 1
	sd.SampleCount, sd.SampleQuality = 1, 0
	sd.Usage = d3d11UsageStaging
	sd.BindFlags = 0
	sd.CPUAccessFlags = d3d11CPUAccessRead
	sd.MiscFlags = 0

	var staging unsafe.Pointer
	hr := comCall(d.device, d3dDeviceCreateTexture2D, uintptr(unsafe.Pointer(&sd)), 0, uintptr(unsafe.Pointer(&staging)))
	if err := checkHR("CreateTexture2D", hr); err != nil {
		return nil, err
	}
	defer comRelease(staging)

	comCall(d.context, d3dContextCopyResource, uintptr(staging), uintptr(tex))

	var m mappedSubresource
	hr = comCall(d.context, d3dContextMap, uintptr(staging), 0, d3d11MapRead, 0, uintptr(unsafe.Pointer(&m)))
	if err := checkHR("Map", hr); err != nil {
		return nil, err
	}
	defer comCall(d.context, d3dContextUnmap, uintptr(staging), 0)

	w, h, pitch := int(desc.Width), int(desc.Height), int(m.RowPitch)
	src := unsafe.Slice((*byte)(m.PData), pitch*h)
	return copyPitched(src, pitch, w, h, FormatBGRA), nil
}
