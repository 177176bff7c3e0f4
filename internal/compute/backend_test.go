//go:build !opengl

package compute

import (
	"errors"
	"strings"
	"testing"
)

func TestOpenCPU(t *testing.T) {
	d, err := Open("cpu", Options{Workers: 2})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer d.Release()

	if !strings.HasPrefix(d.Name(), "cpu") {
		t.Errorf("expected cpu device, got %s", d.Name())
	}
}

func TestOpenAutoFallsBackToCPU(t *testing.T) {
	d, err := Open("auto", Options{Workers: 1})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer d.Release()

	if _, ok := d.(*CPUDevice); !ok {
		t.Errorf("expected *CPUDevice without opengl, got %T", d)
	}
}

func TestOpenUnavailable(t *testing.T) {
	tests := []string{"opengl", "cuda", "quantum"}
	for _, name := range tests {
		d, err := Open(name, Options{})
		if !errors.Is(err, ErrDeviceInit) {
			t.Errorf("%s: expected ErrDeviceInit, got %v", name, err)
		}
		if d != nil {
			t.Errorf("%s: expected nil device, got %T", name, d)
		}
	}
}
