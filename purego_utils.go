//go:build darwin || linux

// Shared utilities for purego-based decoder implementations.

package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Add(p, length)) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// sharedLibName returns the platform file name for a library base name.
func sharedLibName(base string) string {
	if runtime.GOOS == "darwin" {
		return base + ".dylib"
	}
	return base + ".so"
}

// nativeLibPaths lists the candidate locations of a decoder library, most
// specific first. envVar names an override holding a full path;
// MEDIA_SDK_LIB_PATH names a directory shared by all libraries.
func nativeLibPaths(base, envVar string) []string {
	libName := sharedLibName(base)
	var paths []string

	if envPath := os.Getenv(envVar); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("MEDIA_SDK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, libName),
			filepath.Join(exeDir, "..", "lib", libName),
		)
	}

	if moduleRoot := findModuleRoot(); moduleRoot != "" {
		paths = append(paths,
			filepath.Join(moduleRoot, "build", libName),
			filepath.Join(moduleRoot, "build", "ffi", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/opt/homebrew/lib", libName),
		)
	case "linux":
		paths = append(paths,
			libName,
			filepath.Join("/usr/local/lib", libName),
			filepath.Join("/usr/lib", libName),
		)
	}
	return paths
}

// openNativeLib dlopens the first loadable candidate and resolves its symbols
// with register. A library missing any symbol is skipped.
func openNativeLib(base, envVar string, register func(handle uintptr) error) (uintptr, error) {
	var lastErr error
	for _, path := range nativeLibPaths(base, envVar) {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := register(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return handle, nil
	}
	if lastErr != nil {
		return 0, fmt.Errorf("failed to load %s: %w", base, lastErr)
	}
	return 0, errors.New(base + " not found in any standard location")
}

// registerSymbols binds each Go function pointer to its exported C symbol.
func registerSymbols(handle uintptr, symbols map[string]any) (err error) {
	defer func() {
		// purego panics on a missing symbol.
		if r := recover(); r != nil {
			err = fmt.Errorf("resolve symbols: %v", r)
		}
	}()
	for name, fptr := range symbols {
		purego.RegisterLibFunc(fptr, handle, name)
	}
	return nil
}

// copyI420FromC repacks three C-owned I420 planes into buf, which must
// already have the decoded geometry.
func copyI420FromC(buf *VideoFrameBuffer, yPtr, uPtr, vPtr uintptr, yStride, uvStride int) error {
	ptrs := [3]uintptr{yPtr, uPtr, vPtr}
	strides := [3]int{yStride, uvStride, uvStride}
	for i := 0; i < 3; i++ {
		rowBytes, rows := PixelFormatI420.PlaneDimensions(i, buf.Width, buf.Height)
		if rows == 0 {
			continue
		}
		if ptrs[i] == 0 {
			return fmt.Errorf("plane %d: nil pointer", i)
		}
		if strides[i] < rowBytes {
			return fmt.Errorf("plane %d: stride %d shorter than row %d", i, strides[i], rowBytes)
		}
		src := unsafe.Slice((*byte)(unsafe.Pointer(ptrs[i])), strides[i]*(rows-1)+rowBytes)
		if err := copyPlane(buf.Planes[i], buf.Strides[i], src, strides[i], rowBytes, rows); err != nil {
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return nil
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
