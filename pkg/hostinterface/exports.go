package hostinterface

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// called by the host to get the version of the extension
//
//export CullingVersion
func CullingVersion(output *C.char, outputsize C.size_t) {
	replyToSyncCall(Config.version, output, outputsize)
}

// called by the host once per tick with every roster slot; returns 0 on
// success and -1 when the frame was rejected
//
//export CullingUpdateVisibility
func CullingUpdateVisibility(count C.int, teams *C.int, alive *C.int, eyes *C.float, bases *C.float,
	yaws *C.float, pitches *C.float, speeds *C.float, out *C.uchar) (rc C.int) {
	defer func() {
		if r := recover(); r != nil {
			Config.logger.Error("Recovered from panic in visibility update", "panic", r)
			rc = -1
		}
	}()

	n := int(count)
	if n < 0 {
		Config.logger.Error("Rejected visibility update", "count", n)
		return -1
	}
	frame := Frame{
		Teams:   cSlice[int32](unsafe.Pointer(teams), n),
		Alive:   cSlice[int32](unsafe.Pointer(alive), n),
		Eyes:    cSlice[float32](unsafe.Pointer(eyes), 3*n),
		Bases:   cSlice[float32](unsafe.Pointer(bases), 3*n),
		Yaws:    cSlice[float32](unsafe.Pointer(yaws), n),
		Pitches: cSlice[float32](unsafe.Pointer(pitches), n),
		Speeds:  cSlice[float32](unsafe.Pointer(speeds), n),
	}
	matrix := cSlice[uint8](unsafe.Pointer(out), n*n)

	if err := Config.updateVisibility(&frame, matrix); err != nil {
		Config.logger.Error("Rejected visibility update", "count", n, "error", err)
		return -1
	}
	return 0
}

// called by the host for a single pair query; 1 when target is visible to observer
//
//export CullingIsVisible
func CullingIsVisible(observer C.int, target C.int) (rc C.int) {
	defer func() {
		if r := recover(); r != nil {
			Config.logger.Error("Recovered from panic in visibility query", "panic", r)
			rc = 1
		}
	}()
	if Config.isVisible(int(observer), int(target)) {
		return 1
	}
	return 0
}

// called by the host with "<COMMAND>|arg|arg"
//
//export CullingCommand
func CullingCommand(output *C.char, outputsize C.size_t, input *C.char) {
	command := C.GoString(input)
	defer func() {
		if r := recover(); r != nil {
			Config.logger.Error("Recovered from panic in command", "command", command, "panic", r)
			replyToSyncCall(formatDispatchResponse(command, nil, fmt.Errorf("internal error: %v", r)), output, outputsize)
		}
	}()
	replyToSyncCall(Config.handleCommand(command), output, outputsize)
}

// cSlice views n elements of a host array without copying
func cSlice[T any](p unsafe.Pointer, n int) []T {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(p), n)
}

// replyToSyncCall copies the response into the host's buffer, truncated to outputsize
func replyToSyncCall(response string, output *C.char, outputsize C.size_t) {
	if output == nil || outputsize == 0 {
		return
	}
	result := C.CString(response)
	defer C.free(unsafe.Pointer(result))
	var size = C.strlen(result) + 1
	if size > outputsize {
		size = outputsize
	}
	C.memmove(unsafe.Pointer(output), unsafe.Pointer(result), size)
	// keep the host string terminated when truncated
	*(*C.char)(unsafe.Add(unsafe.Pointer(output), outputsize-1)) = 0
}
