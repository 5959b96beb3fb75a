//go:build windows

package fileutil

import (
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"
)

var procSHFileOperationW = syscall.NewLazyDLL("shell32.dll").NewProc("SHFileOperationW")

// shFileOp mirrors SHFILEOPSTRUCTW
type shFileOp struct {
	hwnd          uintptr
	function      uint32
	from          *uint16
	to            *uint16
	flags         uint16
	aborted       int32
	nameMappings  uintptr
	progressTitle *uint16
}

const (
	foDelete = 0x3
	// allow undo, no confirmation, silent, no error UI
	recycleFlags = 0x40 | 0x10 | 0x4 | 0x400
)

// moveToWindowsTrash sends a file to the Recycle Bin
func moveToWindowsTrash(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	// pFrom is a list terminated by an empty string
	from, err := syscall.UTF16FromString(absPath)
	if err != nil {
		return err
	}
	from = append(from, 0)

	op := shFileOp{function: foDelete, from: &from[0], flags: recycleFlags}
	if ret, _, _ := procSHFileOperationW.Call(uintptr(unsafe.Pointer(&op))); ret != 0 {
		return fmt.Errorf("recycle %s: SHFileOperationW returned %#x", path, ret)
	}
	return nil
}
