package slab

import "testing"

func TestPaintPageBirthStampsUnallocatedAndPad(t *testing.T) {
	l := NewLayout(16, HeaderNone, 0, 2, 0, 2)
	buf := make([]byte, l.PageSize)

	PaintPageBirth(buf, l)

	for i := 0; i < l.ObjectsPerPage; i++ {
		left := l.LeftPadOffset(i)
		for j := 0; j < l.PadBytes; j++ {
			if buf[left+j] != PatternPad {
				t.Errorf("block %d left pad byte %d = %#x, want %#x", i, j, buf[left+j], PatternPad)
			}
		}
		right := l.RightPadOffset(i)
		for j := 0; j < l.PadBytes; j++ {
			if buf[right+j] != PatternPad {
				t.Errorf("block %d right pad byte %d = %#x, want %#x", i, j, buf[right+j], PatternPad)
			}
		}
		obj := l.ObjectOffset(i)
		for j := 0; j < l.ObjectSize; j++ {
			if buf[obj+j] != PatternUnallocated {
				t.Errorf("block %d object byte %d = %#x, want %#x", i, j, buf[obj+j], PatternUnallocated)
			}
		}
	}
}

func TestPaintAllocatedAndFreed(t *testing.T) {
	const objectSize = 8
	buf := make([]byte, objectSize)
	addr := addrOf(buf, 0)

	PaintAllocated(addr, objectSize)
	for i, b := range buf {
		if b != PatternAllocated {
			t.Errorf("byte %d = %#x, want %#x", i, b, PatternAllocated)
		}
	}

	PaintFreed(addr, objectSize)
	for i, b := range buf {
		if b != PatternFreed {
			t.Errorf("byte %d = %#x, want %#x", i, b, PatternFreed)
		}
	}
}

func TestCheckPadDetectsCorruption(t *testing.T) {
	const padBytes = 4
	const objectSize = 8
	buf := make([]byte, padBytes+objectSize+padBytes)
	objAddr := addrOf(buf, padBytes)

	for i := range buf[:padBytes] {
		buf[i] = PatternPad
	}
	for i := range buf[padBytes+objectSize:] {
		buf[padBytes+objectSize+i] = PatternPad
	}

	if ok, _ := CheckPad(objAddr, objectSize, padBytes); !ok {
		t.Fatal("CheckPad on intact pads = false, want true")
	}

	buf[1] = 0xFF // corrupt a left pad byte.
	ok, badAddr := CheckPad(objAddr, objectSize, padBytes)
	if ok {
		t.Fatal("CheckPad after corrupting left pad = true, want false")
	}
	if wantAddr := addrOf(buf, 1); badAddr != wantAddr {
		t.Errorf("badAddr = %v, want %v", badAddr, wantAddr)
	}
}

func TestCheckPadNoopWhenPadBytesZero(t *testing.T) {
	buf := make([]byte, 8)
	if ok, _ := CheckPad(addrOf(buf, 0), 8, 0); !ok {
		t.Error("CheckPad with padBytes=0 = false, want true")
	}
}
