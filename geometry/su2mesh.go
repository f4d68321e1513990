package geometry

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// From here: https://su2code.github.io/docs_v7/Mesh-File/
type su2ElementType uint8

const (
	elTypeLine          su2ElementType = 3
	elTypeTriangle      su2ElementType = 5
	elTypeQuadrilateral su2ElementType = 9
)

// ReadSU2Mesh loads a 2D mesh in the SU2 native format: triangular or
// quadrilateral volume elements reduced to the point/edge graph the
// finite-volume kernels operate on, boundary sections kept as named
// markers.
func ReadSU2Mesh(fileName string) (m *Mesh, err error) {
	var file *os.File
	if file, err = os.Open(fileName); err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", fileName, err)
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("reading SU2 mesh %s: %v", fileName, r)
		}
	}()

	nDim := readNumber(reader)
	if nDim != 2 {
		return nil, fmt.Errorf("SU2 mesh %s: %d dimensional data, only 2D supported",
			fileName, nDim)
	}
	m = &Mesh{NDim: nDim}
	edges := readSU2Elements(reader)
	m.Coords = readSU2Vertices(reader, nDim)
	m.NPoints = len(m.Coords) / nDim
	m.Volume = make([]float64, m.NPoints)
	for i := range m.Volume {
		m.Volume[i] = 1
	}
	m.Edges = dedupEdges(edges)
	readSU2Markers(reader, m)
	return m, nil
}

// readSU2Elements reduces the volume element section to its edge list.
func readSU2Elements(reader *bufio.Reader) (edges [][2]int) {
	var (
		nType int
		verts [4]int
	)
	nElem := readNumber(reader)
	for k := 0; k < nElem; k++ {
		line := getLine(reader)
		n, err := fmt.Sscanf(line, "%d %d %d %d %d",
			&nType, &verts[0], &verts[1], &verts[2], &verts[3])
		if err != nil && n < 4 {
			panic(fmt.Errorf("unable to read element vertices from [%s]", line))
		}
		switch su2ElementType(nType) {
		case elTypeTriangle:
			edges = append(edges,
				[2]int{verts[0], verts[1]},
				[2]int{verts[1], verts[2]},
				[2]int{verts[2], verts[0]})
		case elTypeQuadrilateral:
			if n != 5 {
				panic(fmt.Errorf("quadrilateral needs 4 vertices, got %d", n-1))
			}
			edges = append(edges,
				[2]int{verts[0], verts[1]},
				[2]int{verts[1], verts[2]},
				[2]int{verts[2], verts[3]},
				[2]int{verts[3], verts[0]})
		default:
			panic(fmt.Errorf("unable to deal with element type %d", nType))
		}
	}
	return
}

func readSU2Vertices(reader *bufio.Reader, nDim int) (coords []float64) {
	var x, y float64
	nv := readNumber(reader)
	coords = make([]float64, nv*nDim)
	for i := 0; i < nv; i++ {
		line := getLine(reader)
		if n, err := fmt.Sscanf(line, "%f %f", &x, &y); err != nil || n != 2 {
			panic(fmt.Errorf("unable to read coordinates from [%s]", line))
		}
		coords[i*nDim], coords[i*nDim+1] = x, y
	}
	return
}

// readSU2Markers loads the boundary sections as named point-set markers.
func readSU2Markers(reader *bufio.Reader, m *Mesh) {
	nMark := readNumber(reader)
	for n := 0; n < nMark; n++ {
		var (
			label  = readLabel(reader)
			nEdges = readNumber(reader)
			nType  int
			v1, v2 int
			seen   = make(map[int]bool)
			mk     = MeshMarker{Name: label}
		)
		for i := 0; i < nEdges; i++ {
			line := getLine(reader)
			if _, err := fmt.Sscanf(line, "%d %d %d", &nType, &v1, &v2); err != nil {
				panic(err)
			}
			if su2ElementType(nType) != elTypeLine {
				panic("BCs should only contain line elements in 2D")
			}
			for _, v := range [2]int{v1, v2} {
				if !seen[v] {
					seen[v] = true
					mk.Points = append(mk.Points, v)
				}
			}
		}
		sort.Ints(mk.Points)
		m.Markers = append(m.Markers, mk)
	}
}

func dedupEdges(edges [][2]int) (out [][2]int) {
	seen := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		a, b := e[0], e[1]
		if a > b {
			a, b = b, a
		}
		if !seen[[2]int{a, b}] {
			seen[[2]int{a, b}] = true
			out = append(out, [2]int{a, b})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return
}

func getToken(reader *bufio.Reader) (token string) {
	line := getLineNoComments(reader)
	ind := strings.Index(line, "=")
	if ind < 0 {
		panic(fmt.Errorf("badly formed input line [%s], should have an =", line))
	}
	token = line[ind+1:]
	return
}

func readLabel(reader *bufio.Reader) (label string) {
	token := getToken(reader)
	if _, err := fmt.Sscanf(token, "%s", &label); err != nil {
		panic(fmt.Errorf("unable to read label from token: [%s]", token))
	}
	label = strings.Trim(label, " ")
	return
}

func readNumber(reader *bufio.Reader) (num int) {
	token := getToken(reader)
	if _, err := fmt.Sscanf(token, "%d", &num); err != nil {
		panic(fmt.Errorf("unable to read number from token: [%s]", token))
	}
	return
}

func getLineNoComments(reader *bufio.Reader) (line string) {
	for {
		line = strings.Trim(getLine(reader), " ")
		ind := strings.Index(line, "%")
		if ind != 0 {
			return
		}
	}
}

func getLine(reader *bufio.Reader) (line string) {
	text, err := reader.ReadString('\n')
	if err != nil && len(text) == 0 {
		panic(err)
	}
	return strings.TrimRight(text, "\r\n")
}
