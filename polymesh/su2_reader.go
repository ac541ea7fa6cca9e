package polymesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SU2 element type codes
const (
	su2Triangle = 5
	su2Quad     = 9
)

// ReadSU2 reads the polygons of an SU2 native format file. In a 2D file the
// triangles and quads of the NELEM section become the cells. Volume elements
// of a 3D file are skipped and the boundary marker polygons are read instead,
// giving the surface mesh. Points of a 2D file are placed at z = 0.
func ReadSU2(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		mesh    = NewMesh()
		scanner = bufio.NewScanner(file)
		ndime   int
		npoin   = -1
		lineNum int
	)
	next := func() ([]string, error) {
		for scanner.Scan() {
			lineNum++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "%") {
				continue
			}
			return strings.Fields(line), nil
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("line %d: unexpected end of file", lineNum)
	}
	addCell := func(fields []string) error {
		su2Type, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("line %d: bad element type %q", lineNum, fields[0])
		}
		var numNodes int
		switch su2Type {
		case su2Triangle:
			numNodes = 3
		case su2Quad:
			numNodes = 4
		default:
			return nil
		}
		if len(fields) < numNodes+1 {
			return fmt.Errorf("line %d: element has %d fields, want %d", lineNum, len(fields), numNodes+1)
		}
		ids := make([]int, numNodes)
		for j := range ids {
			if ids[j], err = strconv.Atoi(fields[1+j]); err != nil {
				return fmt.Errorf("line %d: bad vertex %q", lineNum, fields[1+j])
			}
		}
		mesh.AddCell(ids...)
		return nil
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "NDIME":
			if ndime, err = strconv.Atoi(value); err != nil || (ndime != 2 && ndime != 3) {
				return nil, fmt.Errorf("line %d: NDIME must be 2 or 3, got %q", lineNum, value)
			}
		case "NELEM":
			nelem, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad NELEM %q", lineNum, value)
			}
			for i := 0; i < nelem; i++ {
				fields, err := next()
				if err != nil {
					return nil, err
				}
				if ndime == 3 {
					continue
				}
				if err = addCell(fields); err != nil {
					return nil, err
				}
			}
		case "NPOIN":
			if ndime == 0 {
				return nil, fmt.Errorf("line %d: NPOIN before NDIME", lineNum)
			}
			fields := strings.Fields(value)
			if len(fields) == 0 {
				return nil, fmt.Errorf("line %d: missing NPOIN value", lineNum)
			}
			if npoin, err = strconv.Atoi(fields[0]); err != nil {
				return nil, fmt.Errorf("line %d: bad NPOIN %q", lineNum, value)
			}
			mesh.Points = make([]float64, 3*npoin)
			for i := 0; i < npoin; i++ {
				fields, err := next()
				if err != nil {
					return nil, err
				}
				if len(fields) < ndime {
					return nil, fmt.Errorf("line %d: point has %d coordinates, want %d", lineNum, len(fields), ndime)
				}
				id := i
				if len(fields) > ndime {
					if id, err = strconv.Atoi(fields[ndime]); err != nil || id < 0 || id >= npoin {
						return nil, fmt.Errorf("line %d: bad point index %q", lineNum, fields[ndime])
					}
				}
				for d := 0; d < ndime; d++ {
					if mesh.Points[3*id+d], err = strconv.ParseFloat(fields[d], 64); err != nil {
						return nil, fmt.Errorf("line %d: bad coordinate %q", lineNum, fields[d])
					}
				}
			}
		case "NMARK":
			nmark, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad NMARK %q", lineNum, value)
			}
			for i := 0; i < nmark; i++ {
				if err = readMarker(next, func(fields []string) error {
					if ndime != 3 {
						return nil
					}
					return addCell(fields)
				}); err != nil {
					return nil, err
				}
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if npoin < 0 {
		return nil, fmt.Errorf("no NPOIN section in %s", filename)
	}
	if err = mesh.Validate(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return mesh, nil
}

func readMarker(next func() ([]string, error), element func([]string) error) error {
	var nelem int
	for _, want := range []string{"MARKER_TAG", "MARKER_ELEMS"} {
		fields, err := next()
		if err != nil {
			return err
		}
		key, value, _ := strings.Cut(strings.Join(fields, " "), "=")
		if strings.TrimSpace(key) != want {
			return fmt.Errorf("expected %s, got %q", want, key)
		}
		if want == "MARKER_ELEMS" {
			if nelem, err = strconv.Atoi(strings.TrimSpace(value)); err != nil {
				return fmt.Errorf("bad MARKER_ELEMS %q", value)
			}
		}
	}
	for j := 0; j < nelem; j++ {
		fields, err := next()
		if err != nil {
			return err
		}
		if err = element(fields); err != nil {
			return err
		}
	}
	return nil
}
