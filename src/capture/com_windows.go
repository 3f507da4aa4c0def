//go:build windows

package capture

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// Raw COM helpers. Every interface pointer is an unsafe.Pointer whose first
// word points at the vtable.

const (
	vtblQueryInterface = 0
	vtblRelease        = 2
)

func comCall(obj unsafe.Pointer, index int, args ...uintptr) uintptr {
	vtbl := *(*unsafe.Pointer)(obj)
	fn := *(*uintptr)(unsafe.Add(vtbl, uintptr(index)*unsafe.Sizeof(uintptr(0))))
	all := make([]uintptr, 0, len(args)+1)
	all = append(all, uintptr(obj))
	all = append(all, args...)
	r, _, _ := syscall.SyscallN(fn, all...)
	return r
}

func comRelease(obj unsafe.Pointer) {
	if obj != nil {
		comCall(obj, vtblRelease)
	}
}

func comQuery(obj unsafe.Pointer, iid *ole.GUID, op string) (unsafe.Pointer, error) {
	var out unsafe.Pointer
	hr := comCall(obj, vtblQueryInterface, uintptr(unsafe.Pointer(iid)), uintptr(unsafe.Pointer(&out)))
	if err := checkHR(op, hr); err != nil {
		return nil, err
	}
	return out, nil
}

// oleCode returns the HRESULT carried by a go-ole error.
func oleError(op string, err error) error {
	if oe, ok := err.(*ole.OleError); ok {
		return &HRESULTError{Op: op, Code: uint32(oe.Code())}
	}
	return err
}
