package safetensors

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// writeRaw creates a safetensors file from a literal header and payload.
func writeRaw(t *testing.T, path string, header map[string]any, payload []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf := append(lenBuf[:], headerBytes...)
	buf = append(buf, payload...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func openT(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteThenOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "enc.safetensors")

	err := Write(path, []Tensor{
		{Name: "gru.bias_ih_l0", Shape: []int{3}, Data: []float32{0.5, -1, 2}},
		{Name: "embedding.weight", Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
	}, map[string]string{"format": "datenorm"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f := openT(t, path)
	if len(f.Tensors) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(f.Tensors))
	}
	if f.Metadata["format"] != "datenorm" {
		t.Fatalf("metadata not preserved: %v", f.Metadata)
	}
	if f.DataStart%8 != 0 {
		t.Fatalf("data start %d not 8-byte aligned", f.DataStart)
	}

	emb, err := f.ReadShaped("embedding.weight", 2, 3)
	if err != nil {
		t.Fatalf("ReadShaped: %v", err)
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if emb[i] != want {
			t.Fatalf("embedding[%d] = %f, want %f", i, emb[i], want)
		}
	}
	bias, err := f.ReadShaped("gru.bias_ih_l0", 3)
	if err != nil {
		t.Fatalf("ReadShaped bias: %v", err)
	}
	if bias[1] != -1 {
		t.Fatalf("bias[1] = %f", bias[1])
	}
}

func TestWriteRejectsBadShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := Write(path, []Tensor{{Name: "w", Shape: []int{2, 2}, Data: []float32{1}}}, nil)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestReadShapedMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "m.safetensors")
	if err := Write(path, []Tensor{{Name: "out.weight", Shape: []int{13, 4}, Data: make([]float32, 52)}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f := openT(t, path)
	_, err := f.ReadShaped("out.weight", 12, 4)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestReadShapedDropsLeadingUnitDim(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "v.safetensors")
	if err := Write(path, []Tensor{{Name: "attn.other", Shape: []int{1, 4}, Data: []float32{1, 2, 3, 4}}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f := openT(t, path)
	v, err := f.ReadShaped("attn.other", 4)
	if err != nil {
		t.Fatalf("ReadShaped: %v", err)
	}
	if len(v) != 4 {
		t.Fatalf("got %d values", len(v))
	}
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "truncated.safetensors")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestOpenHeaderLengthPastEOF(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "long.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 4096)
	if err := os.WriteFile(path, append(lenBuf[:], '{', '}'), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestOpenInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "invalid.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	if err := os.WriteFile(path, append(lenBuf[:], []byte("not valid js")...), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid header")
	}
}

func TestInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad_offsets.safetensors")
	writeRaw(t, path, map[string]any{
		"bad_tensor": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid data_offsets")
	}
}

func TestTensorPastEndOfFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.safetensors")
	writeRaw(t, path, map[string]any{
		"w": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 16}},
	}, make([]byte, 8))
	if _, err := Open(path); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestTensorNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	if err := Write(path, []Tensor{{Name: "exists", Shape: []int{1}, Data: []float32{1}}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f := openT(t, path)
	if _, ok := f.Tensor("missing"); ok {
		t.Fatal("expected missing tensor lookup to fail")
	}
	if _, _, err := f.ReadTensor("missing"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("expected ErrTensorNotFound, got %v", err)
	}
}

func TestReadTensorHalfPrecision(t *testing.T) {
	t.Parallel()
	cases := []struct {
		dtype string
		bits  []uint16
		want  []float32
	}{
		{"BF16", []uint16{0x3F80, 0x4000, 0xBF80}, []float32{1, 2, -1}},
		{"F16", []uint16{0x3C00, 0x4000, 0xBC00}, []float32{1, 2, -1}},
	}
	for _, tc := range cases {
		t.Run(tc.dtype, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "half.safetensors")
			payload := make([]byte, len(tc.bits)*2)
			for i, b := range tc.bits {
				binary.LittleEndian.PutUint16(payload[i*2:], b)
			}
			writeRaw(t, path, map[string]any{
				"h": map[string]any{"dtype": tc.dtype, "shape": []int{len(tc.bits)}, "data_offsets": []int64{0, int64(len(payload))}},
			}, payload)

			f := openT(t, path)
			got, info, err := f.ReadTensorF32("h")
			if err != nil {
				t.Fatalf("ReadTensorF32: %v", err)
			}
			if info.DType != tc.dtype {
				t.Fatalf("dtype = %q", info.DType)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("element %d = %f, want %f", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestReadTensorUnsupportedDType(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "i8.safetensors")
	writeRaw(t, path, map[string]any{
		"q": map[string]any{"dtype": "I8", "shape": []int{4}, "data_offsets": []int64{0, 4}},
	}, make([]byte, 4))
	f := openT(t, path)
	if _, _, err := f.ReadTensorF32("q"); err == nil {
		t.Fatal("expected unsupported dtype error")
	}
}

func TestReadTensorInvertedOffsets(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "inverted.safetensors")
	writeRaw(t, path, map[string]any{
		"bad": map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int64{8, 0}},
	}, nil)
	f := openT(t, path)
	if _, _, err := f.ReadTensor("bad"); err == nil {
		t.Fatal("expected error for inverted offsets")
	}
}

func TestReadAfterClose(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "c.safetensors")
	if err := Write(path, []Tensor{{Name: "w", Shape: []int{1}, Data: []float32{1}}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := f.ReadTensor("w"); err == nil {
		t.Fatal("expected error reading a closed file")
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()
	cases := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{7}, 7, false},
		{nil, 0, true},
		{[]int{2, 0}, 0, true},
		{[]int{-1}, 0, true},
	}
	for _, tc := range cases {
		got, err := numElements(tc.shape)
		if (err != nil) != tc.wantErr {
			t.Fatalf("numElements(%v) err = %v", tc.shape, err)
		}
		if got != tc.want {
			t.Fatalf("numElements(%v) = %d, want %d", tc.shape, got, tc.want)
		}
	}
}

func TestFp16ToFloat32Specials(t *testing.T) {
	t.Parallel()
	if v := fp16ToFloat32(0x8000); math.Float32bits(v) != 0x80000000 {
		t.Fatalf("-0 decoded as %f", v)
	}
	if v := fp16ToFloat32(0x7C00); !math.IsInf(float64(v), 1) {
		t.Fatalf("+inf decoded as %f", v)
	}
	if v := fp16ToFloat32(0x0001); v <= 0 || v > 1e-7 {
		t.Fatalf("smallest subnormal decoded as %g", v)
	}
}
