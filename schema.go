package tarantool

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pior/tarantool/iproto"
)

// FieldDef describes one field of a space's format.
type FieldDef struct {
	Name string
	Type FieldType
}

// IndexField references a field of the space from an index definition.
// Name is empty when only the numeric position is known.
type IndexField struct {
	FieldNo uint32
	Name    string
	Type    FieldType
}

// IndexDef describes one index of a space.
type IndexDef struct {
	ID     uint32
	Name   string
	Fields []IndexField
}

// SpaceDef describes a space: its identity, ordered field descriptors,
// and indexes. DefaultType governs fields past the declared prefix.
type SpaceDef struct {
	ID          uint32
	Name        string
	Fields      []FieldDef
	DefaultType FieldType

	indexesByName map[string]*IndexDef
	indexesByID   map[uint32]*IndexDef
}

// AddIndex registers an index with the space definition. Used when
// building a pre-configured schema by hand.
func (s *SpaceDef) AddIndex(idx *IndexDef) error {
	if s.indexesByName == nil {
		s.indexesByName = make(map[string]*IndexDef)
		s.indexesByID = make(map[uint32]*IndexDef)
	}
	if idx.Name != "" {
		if _, ok := s.indexesByName[idx.Name]; ok {
			return fmt.Errorf("tarantool: duplicate index name %q in space %q", idx.Name, s.Name)
		}
	}
	if _, ok := s.indexesByID[idx.ID]; ok {
		return fmt.Errorf("tarantool: duplicate index id %d in space %q", idx.ID, s.Name)
	}
	if idx.Name != "" {
		s.indexesByName[idx.Name] = idx
	}
	s.indexesByID[idx.ID] = idx
	return nil
}

// Indexes returns the indexes of the space in unspecified order.
func (s *SpaceDef) Indexes() []*IndexDef {
	out := make([]*IndexDef, 0, len(s.indexesByID))
	for _, idx := range s.indexesByID {
		out = append(out, idx)
	}
	return out
}

// fieldType returns the coding type for field position i.
func (s *SpaceDef) fieldType(i int) FieldType {
	if i < len(s.Fields) && s.Fields[i].Type != "" {
		return s.Fields[i].Type
	}
	if s.DefaultType != "" {
		return s.DefaultType
	}
	return FieldStr
}

// fieldNo resolves a field name to its position.
func (s *SpaceDef) fieldNo(name string) (uint32, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// resolveIndex maps an index reference to its numeric id.
func (s *SpaceDef) resolveIndex(idx Index) (uint32, error) {
	if idx.IsNumeric() {
		return idx.id, nil
	}
	def, ok := s.indexesByName[idx.name]
	if !ok {
		return 0, fmt.Errorf("tarantool: unknown index %q in space %q", idx.name, s.Name)
	}
	return def.ID, nil
}

// Spaces is the cached schema: space definitions addressable by name
// and by numeric id. Names and ids are unique.
type Spaces struct {
	byName map[string]*SpaceDef
	byID   map[uint32]*SpaceDef
}

// NewSpaces builds a schema container from explicit definitions. Used
// for the Config.Spaces pre-built schema that bypasses discovery.
func NewSpaces(defs ...*SpaceDef) (*Spaces, error) {
	s := &Spaces{
		byName: make(map[string]*SpaceDef, len(defs)),
		byID:   make(map[uint32]*SpaceDef, len(defs)),
	}
	for _, def := range defs {
		if err := s.add(def); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Spaces) add(def *SpaceDef) error {
	if def.Name == "" {
		return fmt.Errorf("tarantool: space %d has no name", def.ID)
	}
	if _, ok := s.byName[def.Name]; ok {
		return fmt.Errorf("tarantool: duplicate space name %q", def.Name)
	}
	if _, ok := s.byID[def.ID]; ok {
		return fmt.Errorf("tarantool: duplicate space id %d", def.ID)
	}
	s.byName[def.Name] = def
	s.byID[def.ID] = def
	return nil
}

// Space looks up a space definition by name.
func (s *Spaces) Space(name string) (*SpaceDef, bool) {
	def, ok := s.byName[name]
	return def, ok
}

// SpaceByID looks up a space definition by numeric id.
func (s *Spaces) SpaceByID(id uint32) (*SpaceDef, bool) {
	def, ok := s.byID[id]
	return def, ok
}

// Len returns the number of cached spaces.
func (s *Spaces) Len() int {
	return len(s.byID)
}

// normalizeFieldType maps the type spellings found in metadata rows
// (legacy and modern) to a FieldType.
func normalizeFieldType(s string) FieldType {
	switch strings.ToLower(s) {
	case "str", "string", "utf8str":
		if strings.EqualFold(s, "utf8str") {
			return FieldUTF8Str
		}
		return FieldStr
	case "num", "unsigned", "uint", "integer":
		return FieldNum
	case "num64", "unsigned64", "uint64":
		return FieldNum64
	}
	return FieldStr
}

// buildSpaces merges _vspace and _vindex rows into a schema container:
//
//  1. server-internal entries (name starting with "_") are skipped
//  2. index parts referencing fields beyond the format extend the
//     field list with the index-derived type
//  3. spaces with neither fields nor indexes are dropped
//  4. index field references are rewritten from positions to names
//     when the position has a known name
func buildSpaces(spaceRows, indexRows [][]any, defaultType FieldType) (*Spaces, error) {
	spaces := &Spaces{
		byName: make(map[string]*SpaceDef),
		byID:   make(map[uint32]*SpaceDef),
	}

	for _, row := range spaceRows {
		def, err := parseSpaceRow(row)
		if err != nil {
			return nil, err
		}
		if def == nil || strings.HasPrefix(def.Name, "_") {
			continue
		}
		def.DefaultType = defaultType
		if err := spaces.add(def); err != nil {
			return nil, err
		}
	}

	for _, row := range indexRows {
		spaceID, idx, err := parseIndexRow(row)
		if err != nil {
			return nil, err
		}
		def, ok := spaces.byID[spaceID]
		if !ok {
			continue
		}

		for i := range idx.Fields {
			f := &idx.Fields[i]
			for int(f.FieldNo) >= len(def.Fields) {
				def.Fields = append(def.Fields, FieldDef{})
			}
			if def.Fields[f.FieldNo].Type == "" {
				def.Fields[f.FieldNo].Type = f.Type
			}
			if name := def.Fields[f.FieldNo].Name; name != "" {
				f.Name = name
			}
		}

		if err := def.AddIndex(idx); err != nil {
			return nil, err
		}
	}

	for id, def := range spaces.byID {
		if len(def.Fields) == 0 && len(def.indexesByID) == 0 {
			delete(spaces.byID, id)
			delete(spaces.byName, def.Name)
		}
	}

	return spaces, nil
}

// parseSpaceRow parses one _vspace row:
// (space_no, uid, space_name, engine, field_count, opts, format).
func parseSpaceRow(row []any) (*SpaceDef, error) {
	if len(row) < 3 {
		return nil, fmt.Errorf("tarantool: short _vspace row (%d fields)", len(row))
	}
	id, ok := asUint32(row[0])
	if !ok {
		return nil, fmt.Errorf("tarantool: _vspace row: bad space id %v", row[0])
	}
	name, ok := asString(row[2])
	if !ok {
		return nil, fmt.Errorf("tarantool: _vspace row %d: bad space name %v", id, row[2])
	}

	def := &SpaceDef{ID: id, Name: name}

	if len(row) >= 7 {
		format, _ := row[6].([]any)
		for _, entry := range format {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			fname, _ := asString(m["name"])
			ftype := ""
			if t, ok := asString(m["type"]); ok {
				ftype = t
			}
			def.Fields = append(def.Fields, FieldDef{
				Name: fname,
				Type: normalizeFieldType(ftype),
			})
		}
	}

	return def, nil
}

// parseIndexRow parses one _vindex row:
// (space_no, index_no, index_name, index_type, params, parts) where
// parts is an ordered list of (field_no, field_type) pairs, either as
// arrays or as maps.
func parseIndexRow(row []any) (uint32, *IndexDef, error) {
	if len(row) < 6 {
		return 0, nil, fmt.Errorf("tarantool: short _vindex row (%d fields)", len(row))
	}
	spaceID, ok := asUint32(row[0])
	if !ok {
		return 0, nil, fmt.Errorf("tarantool: _vindex row: bad space id %v", row[0])
	}
	indexID, ok := asUint32(row[1])
	if !ok {
		return 0, nil, fmt.Errorf("tarantool: _vindex row: bad index id %v", row[1])
	}
	name, ok := asString(row[2])
	if !ok {
		return 0, nil, fmt.Errorf("tarantool: _vindex row: bad index name %v", row[2])
	}

	idx := &IndexDef{ID: indexID, Name: name}

	parts, _ := row[5].([]any)
	for _, part := range parts {
		var field IndexField
		switch p := part.(type) {
		case []any:
			if len(p) < 2 {
				continue
			}
			no, ok := asUint32(p[0])
			if !ok {
				continue
			}
			t, _ := asString(p[1])
			field = IndexField{FieldNo: no, Type: normalizeFieldType(t)}
		case map[string]any:
			no, ok := asUint32(p["field"])
			if !ok {
				continue
			}
			t, _ := asString(p["type"])
			field = IndexField{FieldNo: no, Type: normalizeFieldType(t)}
		default:
			continue
		}
		idx.Fields = append(idx.Fields, field)
	}

	return spaceID, idx, nil
}

func asUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint64:
		return uint32(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint32:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint:
		return uint32(n), true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint8:
		return uint32(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint16:
		return uint32(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// loadSchema runs discovery: it selects the two metadata spaces
// concurrently, merges the rows into a fresh container, then pings to
// harvest the current schema version. Callers hold c.mu.
func (c *Client) loadSchema(ctx context.Context) error {
	var spaceRows, indexRows [][]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.metaSelect(gctx, iproto.VSpaceID)
		spaceRows = rows
		return err
	})
	g.Go(func() error {
		rows, err := c.metaSelect(gctx, iproto.VIndexID)
		indexRows = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	spaces, err := buildSpaces(spaceRows, indexRows, c.cfg.DefaultFieldType)
	if err != nil {
		return err
	}

	req := iproto.NewPingRequest()
	resp, err := c.conn.Do(req).Response(ctx)
	if err != nil {
		return err
	}
	if resp.Code != 0 {
		return newServerError(resp)
	}

	c.spaces = spaces
	c.schemaVersion = resp.SchemaVersion
	c.stats.recordSchemaLoad()
	c.cfg.Logger.Debug("tarantool: schema loaded",
		"spaces", spaces.Len(), "schema_version", resp.SchemaVersion)
	return nil
}

// metaSelect reads all rows of a metadata space. Metadata selects are
// untagged: they must succeed regardless of the cached schema version.
func (c *Client) metaSelect(ctx context.Context, spaceID uint32) ([][]any, error) {
	req := iproto.NewRequest(iproto.TypeSelect)
	req.Body.AddUint(iproto.KeySpaceID, uint64(spaceID))
	req.Body.AddUint(iproto.KeyIndexID, 0)
	req.Body.AddUint(iproto.KeyLimit, 0xffffffff)
	req.Body.AddUint(iproto.KeyOffset, 0)
	req.Body.AddUint(iproto.KeyIterator, uint64(iproto.IterAll))
	req.Body.AddFields(iproto.KeyKey, nil)

	resp, err := c.conn.Do(req).Response(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, newServerError(resp)
	}
	return resp.Data, nil
}
