package gtfs

import (
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/geo"
)

// Shape contains rows from the GTFS shapes.txt file, describing the polyline
// a trip's vehicle physically travels.
type Shape struct {
	DataSetId         int64    `db:"data_set_id" json:"data_set_id"`
	ShapeId           string   `db:"shape_id" json:"shape_id"`
	ShapePtLat        float64  `db:"shape_pt_lat" json:"shape_pt_lat"`
	ShapePtLng        float64  `db:"shape_pt_lon" json:"shape_pt_lon"`
	ShapePtSequence   int      `db:"shape_pt_sequence" json:"shape_pt_sequence"`
	ShapeDistTraveled *float64 `db:"shape_dist_traveled" json:"shape_dist_traveled"`
}

// RecordShapes saves shapes to database in a batch.
func RecordShapes(shapes []*Shape, dsTx *DataSetTransaction) error {
	for _, shape := range shapes {
		shape.DataSetId = dsTx.DS.Id
	}

	statementString := "insert into shape ( " +
		"data_set_id, " +
		"shape_id, " +
		"shape_pt_lat, " +
		"shape_pt_lon, " +
		"shape_pt_sequence, " +
		"shape_dist_traveled) " +
		"values (" +
		":data_set_id, " +
		":shape_id, " +
		":shape_pt_lat, " +
		":shape_pt_lon, " +
		":shape_pt_sequence, " +
		":shape_dist_traveled)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, shapes)
	return err
}

// GetShapePoints retrieves every point of shapeId ordered by
// shape_pt_sequence.
func GetShapePoints(db *sqlx.DB, dataSetId int64, shapeId string) ([]*Shape, error) {
	var points []*Shape
	query := db.Rebind("select * from shape where data_set_id = ? and shape_id = ? order by shape_pt_sequence")
	if err := db.Select(&points, query, dataSetId, shapeId); err != nil {
		return nil, fmt.Errorf("unable to retrieve shape points for shape %s: %w", shapeId, err)
	}
	return points, nil
}

// ToPolyline converts shape points, assumed already ordered by
// shape_pt_sequence, into the planar geo.Polyline the matching engine
// projects raw fixes onto. referenceLat anchors the flat-earth projection;
// the first point's latitude is used when the caller has none handier.
func ToPolyline(points []*Shape, referenceLat float64) geo.Polyline {
	sorted := make([]*Shape, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ShapePtSequence < sorted[j].ShapePtSequence })

	planar := make([]geo.Point, len(sorted))
	for i, p := range sorted {
		planar[i] = geo.FromLatLon(geo.LatLon{Lat: p.ShapePtLat, Lon: p.ShapePtLng}, referenceLat)
	}
	return geo.New(planar)
}
