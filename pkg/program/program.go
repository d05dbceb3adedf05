package program

import (
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Format identifies the container format of a loaded program
type Format string

const (
	FormatELF   Format = "elf"
	FormatPE    Format = "pe"
	FormatMachO Format = "macho"
	FormatRaw   Format = "raw"
)

// MaxProgramSize bounds how much of a file is read into memory
const MaxProgramSize = 512 << 20

var (
	// ErrEmptyPath is returned when Open is called without a path
	ErrEmptyPath = errors.New("program path is empty")
	// ErrOutOfRange is returned when a read falls outside the program image
	ErrOutOfRange = errors.New("range outside program image")
)

// Program is a binary opened by the host. It is immutable once opened.
type Program struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Format   Format    `json:"format"`
	Arch     string    `json:"arch"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	LoadedAt time.Time `json:"loaded_at"`

	data     []byte
	sections []Section
}

// Section describes a named region of the program image
type Section struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
	Addr   uint64 `json:"addr"`
}

// Open reads and analyzes the program at path
func Open(path string) (*Program, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat program: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("program path is a directory: %s", path)
	}
	if info.Size() > MaxProgramSize {
		return nil, fmt.Errorf("program too large: %d bytes (max %d)", info.Size(), MaxProgramSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return FromBytes(filepath.Base(path), abs, data), nil
}

// FromBytes builds a Program from an in-memory image
func FromBytes(name, path string, data []byte) *Program {
	sum := sha256.Sum256(data)

	p := &Program{
		Name:     name,
		Path:     path,
		Format:   DetectFormat(data),
		Size:     int64(len(data)),
		SHA256:   hex.EncodeToString(sum[:]),
		LoadedAt: time.Now(),
		data:     data,
	}
	p.Arch, p.sections = analyze(p.Format, data)

	return p
}

// DetectFormat inspects magic bytes to classify an image
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x7f, 'E', 'L', 'F'}):
		return FormatELF
	case isPE(data):
		return FormatPE
	case len(data) >= 4 && isMachOMagic(binary.LittleEndian.Uint32(data[:4])):
		return FormatMachO
	default:
		return FormatRaw
	}
}

// peHeaderOffset is where the DOS stub stores e_lfanew
const peHeaderOffset = 0x3c

// isPE requires the MZ stub and the PE signature it points at, so plain
// files that start with "MZ" stay raw
func isPE(data []byte) bool {
	if len(data) < peHeaderOffset+4 || data[0] != 'M' || data[1] != 'Z' {
		return false
	}
	lfanew := int64(binary.LittleEndian.Uint32(data[peHeaderOffset:]))
	if lfanew > int64(len(data))-4 {
		return false
	}
	return bytes.Equal(data[lfanew:lfanew+4], []byte{'P', 'E', 0, 0})
}

func isMachOMagic(m uint32) bool {
	switch m {
	case macho.Magic32, macho.Magic64:
		return true
	}
	// big-endian images read little-endian
	switch m {
	case 0xcefaedfe, 0xcffaedfe:
		return true
	}
	return false
}

// analyze extracts the architecture and section table. Parse failures
// degrade to an unknown architecture with no sections.
func analyze(format Format, data []byte) (string, []Section) {
	r := bytes.NewReader(data)

	switch format {
	case FormatELF:
		f, err := elf.NewFile(r)
		if err != nil {
			return "unknown", nil
		}
		defer f.Close()

		var sections []Section
		for _, s := range f.Sections {
			if s.Name == "" {
				continue
			}
			sections = append(sections, Section{Name: s.Name, Offset: s.Offset, Size: s.Size, Addr: s.Addr})
		}
		return f.Machine.String(), sections

	case FormatPE:
		f, err := pe.NewFile(r)
		if err != nil {
			return "unknown", nil
		}
		defer f.Close()

		var sections []Section
		for _, s := range f.Sections {
			sections = append(sections, Section{
				Name:   s.Name,
				Offset: uint64(s.Offset),
				Size:   uint64(s.Size),
				Addr:   uint64(s.VirtualAddress),
			})
		}
		return peMachine(f.Machine), sections

	case FormatMachO:
		f, err := macho.NewFile(r)
		if err != nil {
			return "unknown", nil
		}
		defer f.Close()

		var sections []Section
		for _, s := range f.Sections {
			sections = append(sections, Section{
				Name:   s.Seg + "," + s.Name,
				Offset: uint64(s.Offset),
				Size:   s.Size,
				Addr:   s.Addr,
			})
		}
		return f.Cpu.String(), sections
	}

	return "unknown", nil
}

func peMachine(m uint16) string {
	switch m {
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x86-64"
	case pe.IMAGE_FILE_MACHINE_ARM:
		return "arm"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("0x%04x", m)
	}
}

// Sections returns a copy of the section table
func (p *Program) Sections() []Section {
	out := make([]Section, len(p.sections))
	copy(out, p.sections)
	return out
}

// ReadBytes returns length bytes starting at offset
func (p *Program) ReadBytes(offset, length int64) ([]byte, error) {
	size := int64(len(p.data))
	// compared against the remainder so offset+length cannot overflow
	if offset < 0 || length < 0 || offset > size || length > size-offset {
		return nil, fmt.Errorf("%w: offset=%d length=%d size=%d", ErrOutOfRange, offset, length, len(p.data))
	}

	out := make([]byte, length)
	copy(out, p.data[offset:offset+length])
	return out, nil
}
