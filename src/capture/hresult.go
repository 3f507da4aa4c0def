package capture

import (
	"errors"
	"fmt"
)

// HRESULT values the sources react to.
const (
	hrDXGIAccessLost    uint32 = 0x887A0026
	hrDXGIWaitTimeout   uint32 = 0x887A0027
	hrDXGIDeviceRemoved uint32 = 0x887A0005
	hrDXGIDeviceReset   uint32 = 0x887A0007
	hrDXGINotFound      uint32 = 0x887A0002
	hrDXGIUnsupported   uint32 = 0x887A0004
	hrENotImpl          uint32 = 0x80004001
	hrClassNotReg       uint32 = 0x80040154
)

// HRESULTError is a failed platform call.
type HRESULTError struct {
	Op   string
	Code uint32
}

func (e *HRESULTError) Error() string {
	if msg := systemMessage(e.Code); msg != "" {
		return fmt.Sprintf("%s: %s (HRESULT: 0x%08X)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("%s (HRESULT: 0x%08X)", e.Op, e.Code)
}

// Is maps device-level codes onto the package sentinels.
func (e *HRESULTError) Is(target error) bool {
	switch target {
	case ErrAccessLost:
		return e.Code == hrDXGIAccessLost || e.Code == hrDXGIDeviceRemoved || e.Code == hrDXGIDeviceReset
	case ErrWaitTimeout:
		return e.Code == hrDXGIWaitTimeout
	case ErrUnsupported:
		return e.Code == hrDXGIUnsupported || e.Code == hrENotImpl || e.Code == hrClassNotReg
	}
	return false
}

// checkHR turns a returned HRESULT into an error; success codes yield nil.
func checkHR(op string, hr uintptr) error {
	if int32(uint32(hr)) >= 0 {
		return nil
	}
	return &HRESULTError{Op: op, Code: uint32(hr)}
}

// HRESULT extracts the code from err, if any.
func HRESULT(err error) (uint32, bool) {
	var he *HRESULTError
	if errors.As(err, &he) {
		return he.Code, true
	}
	return 0, false
}
