//go:build windows

package capture

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

const (
	roInitMultithreaded = 1
	rpcEChangedMode     = 0x80010106

	classCaptureSession = "Windows.Graphics.Capture.GraphicsCaptureSession"
	classCaptureItem    = "Windows.Graphics.Capture.GraphicsCaptureItem"
	classFramePool      = "Windows.Graphics.Capture.Direct3D11CaptureFramePool"

	// vtable slots; IInspectable occupies 0..5
	interopCreateForWindow    = 3
	dxgiAccessGetInterface    = 3
	itemGetSize               = 7
	poolStaticsCreateFree     = 6
	poolTryGetNextFrame       = 7
	poolCreateCaptureSession  = 10
	sessionStartCapture       = 6
	sessionStaticsIsSupported = 6
	frameGetSurface           = 6
	frameGetContentSize       = 8
	closableClose             = 6
)

var (
	iidCaptureItemInterop    = ole.NewGUID("{3628E81B-3CAC-4C60-B7F4-23CE0E0C3356}")
	iidCaptureItem           = ole.NewGUID("{79C3F95B-31F7-4EC2-A464-632EF5D30760}")
	iidFramePoolStatics2     = ole.NewGUID("{589B103F-6BBC-5DF5-A991-02E28B3B66D5}")
	iidCaptureSessionStatics = ole.NewGUID("{2224A540-5974-49AA-B232-0882536F4CB5}")
	iidDxgiInterfaceAccess   = ole.NewGUID("{A9B3D012-3DF2-4EE3-B8D1-8695F457D3C1}")
	iidClosable              = ole.NewGUID("{30D5A829-7FA4-4026-83BB-D75BAE4EA99E}")

	roOnce sync.Once
	roErr  error
)

var errPoolResized = errors.New("window resized, frame pool is stale")

type sizeInt32 struct{ Width, Height int32 }

// packed returns the struct as the single register it is passed in.
func (s sizeInt32) packed() uintptr {
	return uintptr(uint32(s.Width)) | uintptr(uint32(s.Height))<<32
}

func roInit() error {
	roOnce.Do(func() {
		err := ole.RoInitialize(roInitMultithreaded)
		if oe, ok := err.(*ole.OleError); ok {
			// S_FALSE: already initialized; RPC_E_CHANGED_MODE: an STA owns this thread
			if c := uint32(oe.Code()); c == 1 || c == rpcEChangedMode {
				err = nil
			}
		}
		if err != nil {
			roErr = oleError("RoInitialize", err)
		}
	})
	return roErr
}

// probeCompositor reports ErrUnsupported when the OS has no capture API.
func probeCompositor() error {
	if err := roInit(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	statics, err := ole.RoGetActivationFactory(classCaptureSession, iidCaptureSessionStatics)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, oleError("GraphicsCaptureSession statics", err))
	}
	defer statics.Release()
	var supported uint8
	hr := comCall(unsafe.Pointer(statics), sessionStaticsIsSupported, uintptr(unsafe.Pointer(&supported)))
	if err := checkHR("IsSupported", hr); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if supported == 0 {
		return fmt.Errorf("%w: graphics capture disabled on this system", ErrUnsupported)
	}
	return nil
}

// wgcSession owns every object of one window capture session.
type wgcSession struct {
	dev      *d3dDevice
	winrtDev unsafe.Pointer
	item     unsafe.Pointer
	pool     unsafe.Pointer
	session  unsafe.Pointer
	size     sizeInt32
}

func openWGCSession(hwnd uintptr) (CompositorSession, error) {
	if err := roInit(); err != nil {
		return nil, err
	}
	s := &wgcSession{}
	if err := s.start(hwnd); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *wgcSession) start(hwnd uintptr) error {
	dev, err := newD3DDevice()
	if err != nil {
		return err
	}
	s.dev = dev

	dxgiDevice, err := comQuery(dev.device, iidIDXGIDevice, "QueryInterface(IDXGIDevice)")
	if err != nil {
		return err
	}
	defer comRelease(dxgiDevice)
	if err := procCreateDirect3D11DeviceFromDXGIDevice.Find(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	hr, _, _ := procCreateDirect3D11DeviceFromDXGIDevice.Call(uintptr(dxgiDevice), uintptr(unsafe.Pointer(&s.winrtDev)))
	if err := checkHR("CreateDirect3D11DeviceFromDXGIDevice", hr); err != nil {
		return err
	}

	interop, err := ole.RoGetActivationFactory(classCaptureItem, iidCaptureItemInterop)
	if err != nil {
		return oleError("GraphicsCaptureItem interop", err)
	}
	defer interop.Release()
	hr = comCall(unsafe.Pointer(interop), interopCreateForWindow, hwnd,
		uintptr(unsafe.Pointer(iidCaptureItem)), uintptr(unsafe.Pointer(&s.item)))
	if err := checkHR("CreateForWindow", hr); err != nil {
		return err
	}
	if err := checkHR("get_Size", comCall(s.item, itemGetSize, uintptr(unsafe.Pointer(&s.size)))); err != nil {
		return err
	}

	statics, err := ole.RoGetActivationFactory(classFramePool, iidFramePoolStatics2)
	if err != nil {
		return oleError("Direct3D11CaptureFramePool statics", err)
	}
	defer statics.Release()
	hr = comCall(unsafe.Pointer(statics), poolStaticsCreateFree,
		uintptr(s.winrtDev), dxgiFormatB8G8R8A8, 1, s.size.packed(), uintptr(unsafe.Pointer(&s.pool)))
	if err := checkHR("CreateFreeThreaded", hr); err != nil {
		return err
	}

	hr = comCall(s.pool, poolCreateCaptureSession, uintptr(s.item), uintptr(unsafe.Pointer(&s.session)))
	if err := checkHR("CreateCaptureSession", hr); err != nil {
		return err
	}
	return checkHR("StartCapture", comCall(s.session, sessionStartCapture))
}

func (s *wgcSession) TryNext() (*Frame, bool, error) {
	var frame unsafe.Pointer
	if err := checkHR("TryGetNextFrame", comCall(s.pool, poolTryGetNextFrame, uintptr(unsafe.Pointer(&frame)))); err != nil {
		return nil, false, err
	}
	if frame == nil {
		return nil, false, nil
	}
	defer closeAndRelease(frame)

	var content sizeInt32
	comCall(frame, frameGetContentSize, uintptr(unsafe.Pointer(&content)))
	if content != s.size {
		return nil, false, errPoolResized
	}

	var surface unsafe.Pointer
	if err := checkHR("get_Surface", comCall(frame, frameGetSurface, uintptr(unsafe.Pointer(&surface)))); err != nil {
		return nil, false, err
	}
	defer comRelease(surface)

	access, err := comQuery(surface, iidDxgiInterfaceAccess, "QueryInterface(IDirect3DDxgiInterfaceAccess)")
	if err != nil {
		return nil, false, err
	}
	defer comRelease(access)

	var tex unsafe.Pointer
	hr := comCall(access, dxgiAccessGetInterface, uintptr(unsafe.Pointer(iidID3D11Texture2D)), uintptr(unsafe.Pointer(&tex)))
	if err := checkHR("GetInterface(ID3D11Texture2D)", hr); err != nil {
		return nil, false, err
	}
	defer comRelease(tex)

	f, err := s.dev.readTexture(tex)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

func (s *wgcSession) Close() error {
	closeAndRelease(s.session)
	closeAndRelease(s.pool)
	comRelease(s.item)
	comRelease(s.winrtDev)
	s.session, s.pool, s.item, s.winrtDev = nil, nil, nil, nil
	if s.dev != nil {
		s.dev.Release()
		s.dev = nil
	}
	return nil
}

// closeAndRelease calls IClosable.Close before dropping the reference.
func closeAndRelease(obj unsafe.Pointer) {
	if obj == nil {
		return
	}
	if c, err := comQuery(obj, iidClosable, "QueryInterface(IClosable)"); err == nil {
		comCall(c, closableClose)
		comRelease(c)
	}
	comRelease(obj)
}
