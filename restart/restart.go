// Package restart reads and writes solution restart files in two framings:
// a plain CSV table and a binary layout with a magic-number header and
// fixed-width field-name records. A file written in one framing is rejected
// when opened in the other, never silently misread.
package restart

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	// binaryMagic is the first int32 of every binary restart file.
	binaryMagic = 535532
	// fieldNameLen is the fixed width of one field-name record.
	fieldNameLen = 33
)

// Record is one restart table: named fields by global point index.
type Record struct {
	Fields []string
	Data   []float64 // nPoints*len(Fields), point-major
	Iter   int
}

func (r *Record) NPoints() int {
	if len(r.Fields) == 0 {
		return 0
	}
	return len(r.Data) / len(r.Fields)
}

// skipCols counts leading coordinate columns so Scatter lands on the first
// solution field.
func (r *Record) skipCols() (n int) {
	for _, name := range r.Fields {
		switch strings.ToLower(name) {
		case "x", "y", "z":
			n++
		default:
			return
		}
	}
	return
}

// Scatter copies nVar solution fields into the local flat solution array,
// one row per local point, addressed through the partition's global index
// map. Coordinate columns at the front of the table are skipped.
func (r *Record) Scatter(globalIndex []int, nVar int, out []float64) (err error) {
	var (
		nFields = len(r.Fields)
		skip    = r.skipCols()
	)
	if nFields-skip < nVar {
		return fmt.Errorf("restart: %d solution fields, need %d", nFields-skip, nVar)
	}
	for iLocal, g := range globalIndex {
		if g >= r.NPoints() {
			return fmt.Errorf("restart: global point %d beyond table of %d points",
				g, r.NPoints())
		}
		row := r.Data[g*nFields+skip:]
		for v := 0; v < nVar; v++ {
			out[iLocal*nVar+v] = row[v]
		}
	}
	return
}

// Read opens fileName in the requested framing.
func Read(fileName string, isBinary bool) (rec *Record, err error) {
	var file *os.File
	if file, err = os.Open(fileName); err != nil {
		return
	}
	defer file.Close()
	if isBinary {
		return readBinary(file)
	}
	return readASCII(file)
}

// Write stores the record in the requested framing.
func Write(fileName string, rec *Record, isBinary bool) (err error) {
	var file *os.File
	if file, err = os.Create(fileName); err != nil {
		return
	}
	defer file.Close()
	if isBinary {
		return writeBinary(file, rec)
	}
	return writeASCII(file, rec)
}

func readASCII(r io.Reader) (rec *Record, err error) {
	var (
		scanner = bufio.NewScanner(r)
		rec2    = &Record{}
	)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	if !scanner.Scan() {
		return nil, fmt.Errorf("restart: empty file")
	}
	header := scanner.Text()
	if looksBinary(header) {
		return nil, fmt.Errorf("restart: binary file opened as ASCII")
	}
	for _, name := range strings.Split(header, ",") {
		rec2.Fields = append(rec2.Fields, strings.Trim(strings.TrimSpace(name), "\""))
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) != len(rec2.Fields) {
			return nil, fmt.Errorf("restart: row has %d columns, header has %d",
				len(cols), len(rec2.Fields))
		}
		for _, c := range cols {
			var val float64
			if val, err = strconv.ParseFloat(strings.TrimSpace(c), 64); err != nil {
				return nil, fmt.Errorf("restart: %w", err)
			}
			rec2.Data = append(rec2.Data, val)
		}
	}
	return rec2, scanner.Err()
}

// looksBinary detects the little-endian magic at the start of a header line.
func looksBinary(header string) bool {
	if len(header) < 4 {
		return false
	}
	b := []byte(header[:4])
	return int32(binary.LittleEndian.Uint32(b)) == binaryMagic
}

func writeASCII(w io.Writer, rec *Record) (err error) {
	var (
		bw      = bufio.NewWriter(w)
		nFields = len(rec.Fields)
	)
	for i, name := range rec.Fields {
		if i > 0 {
			fmt.Fprint(bw, ",")
		}
		fmt.Fprintf(bw, "%q", name)
	}
	fmt.Fprintln(bw)
	for p := 0; p < rec.NPoints(); p++ {
		for v := 0; v < nFields; v++ {
			if v > 0 {
				fmt.Fprint(bw, ",")
			}
			fmt.Fprintf(bw, "%.15e", rec.Data[p*nFields+v])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func readBinary(r io.Reader) (rec *Record, err error) {
	var header [5]int32
	if err = binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("restart: reading binary header: %w", err)
	}
	if header[0] != binaryMagic {
		return nil, fmt.Errorf("restart: ASCII file opened as binary (magic %d)", header[0])
	}
	var (
		nFields = int(header[1])
		nPoints = int(header[2])
		rec2    = &Record{Iter: int(header[3])}
		name    [fieldNameLen]byte
	)
	for i := 0; i < nFields; i++ {
		if _, err = io.ReadFull(r, name[:]); err != nil {
			return nil, fmt.Errorf("restart: reading field name %d: %w", i, err)
		}
		rec2.Fields = append(rec2.Fields,
			strings.TrimRight(string(name[:]), "\x00"))
	}
	rec2.Data = make([]float64, nPoints*nFields)
	if err = binary.Read(r, binary.LittleEndian, rec2.Data); err != nil {
		return nil, fmt.Errorf("restart: reading binary data: %w", err)
	}
	return rec2, nil
}

func writeBinary(w io.Writer, rec *Record) (err error) {
	header := [5]int32{binaryMagic, int32(len(rec.Fields)),
		int32(rec.NPoints()), int32(rec.Iter), 0}
	if err = binary.Write(w, binary.LittleEndian, header); err != nil {
		return
	}
	var name [fieldNameLen]byte
	for _, field := range rec.Fields {
		for i := range name {
			name[i] = 0
		}
		copy(name[:fieldNameLen-1], field)
		if _, err = w.Write(name[:]); err != nil {
			return
		}
	}
	return binary.Write(w, binary.LittleEndian, rec.Data)
}
