// Package loader downloads, parses, and persists GTFS static feeds as a
// versioned gtfs.DataSet. CSV parsing is handled by gocarina/gocsv rather
// than a hand-rolled reader, with each GTFS file unmarshaled wholesale into
// row structs before conversion to the domain model.
package loader

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/foundation/httpclient"
)

const batchSize = 500

// UpdateFeed checks the remote GTFS zip at url against the most recently
// loaded gtfs.DataSet and, if it differs (or forceDownload is set), downloads
// and loads it as a new DataSet.
func UpdateFeed(log zerolog.Logger, db *sqlx.DB, tempDir, url string, forceDownload bool) error {
	if !forceDownload && !feedHasChanged(log, db, url) {
		log.Info().Msg("remote feed unchanged, skipping load")
		return nil
	}
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return fmt.Errorf("creating temp dir %s: %w", tempDir, err)
	}

	localZip := filepath.Join(tempDir, "gtfs.zip")
	log.Info().Str("url", url).Str("to", localZip).Msg("downloading feed")
	downloaded, err := httpclient.DownloadRemoteFile(localZip, url)
	defer func() {
		if _, statErr := os.Stat(localZip); statErr == nil {
			_ = os.Remove(localZip)
		}
	}()
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	log.Info().Int64("bytes", downloaded.Size).Msg("downloaded feed")

	ds, err := LoadZip(log, db, *downloaded)
	if err != nil {
		return err
	}
	log.Info().Int64("data_set_id", ds.Id).Msg("loaded new data set")
	return nil
}

// feedHasChanged compares the remote file's ETag/Last-Modified against the
// most recently loaded DataSet, logging and defaulting to false when the
// remote check fails so a transient HEAD failure never forces an unnecessary
// reload. Returns true when no DataSet is loaded yet.
func feedHasChanged(log zerolog.Logger, db *sqlx.DB, url string) bool {
	remote, err := httpclient.GetRemoteFileInfo(url)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("unable to check remote feed info")
		return false
	}
	existing, err := gtfs.GetLatestDataSet(db)
	if err != nil {
		log.Info().Msg("no data set currently loaded, loading initial feed")
		return true
	}
	if remote.ETag != "" {
		return remote.ETag != existing.ETag
	}
	if remote.LastModifiedTimestamp == 0 {
		log.Warn().Msg("remote feed has neither ETag nor Last-Modified, cannot determine staleness")
		return false
	}
	return remote.LastModifiedTimestamp != existing.LastModifiedTimestamp
}

// LoadZip loads a single downloaded GTFS zip into a new gtfs.DataSet, wholly
// inside one transaction.
func LoadZip(log zerolog.Logger, db *sqlx.DB, downloaded httpclient.DownloadedFile) (*gtfs.DataSet, error) {
	ds := gtfs.DataSet{
		URL:                   downloaded.RemoteFileInfo.Path,
		ETag:                  downloaded.RemoteFileInfo.ETag,
		LastModifiedTimestamp: downloaded.RemoteFileInfo.LastModifiedTimestamp,
		DownloadedAt:          downloaded.DownloadedAt,
	}

	err := transact(log, db, func(tx *sqlx.Tx) error {
		if err := gtfs.SaveDataSet(tx, &ds); err != nil {
			return err
		}
		dsTx := gtfs.DataSetTransaction{DS: ds, Tx: tx}
		if err := loadZipFile(log, &dsTx, downloaded.LocalFilePath); err != nil {
			return err
		}
		return gtfs.SaveAndTerminateReplacedDataSet(tx, &ds, time.Now())
	})
	return &ds, err
}

// DeleteFeed removes every record owned by dataSetId.
func DeleteFeed(log zerolog.Logger, db *sqlx.DB, dataSetId int64) error {
	ds, err := gtfs.GetDataSet(db, dataSetId)
	if err != nil {
		return fmt.Errorf("no data set found with id %d: %w", dataSetId, err)
	}
	tables := []string{"stop_time", "trip", "shape", "route", "calendar", "calendar_date", "data_set"}
	return transact(log, db, func(tx *sqlx.Tx) error {
		for _, table := range tables {
			query := tx.Rebind(fmt.Sprintf("delete from %s where data_set_id = ?", table))
			if table == "data_set" {
				query = tx.Rebind("delete from data_set where id = ?")
			}
			result, err := tx.Exec(query, ds.Id)
			if err != nil {
				return fmt.Errorf("deleting from %s: %w", table, err)
			}
			rows, _ := result.RowsAffected()
			log.Info().Str("table", table).Int64("rows", rows).Msg("deleted")
		}
		return nil
	})
}

// ListFeeds writes every loaded gtfs.DataSet to stdout.
func ListFeeds(db *sqlx.DB) error {
	sets, err := gtfs.GetAllDataSets(db)
	if err != nil {
		return err
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Id < sets[j].Id })
	for _, ds := range sets {
		fmt.Println(ds.String())
	}
	return nil
}

func transact(log zerolog.Logger, db *sqlx.DB, fn func(*sqlx.Tx) error) (err error) {
	tx, beginErr := db.Beginx()
	if beginErr != nil {
		return beginErr
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("rolling back transaction")
			}
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

type requiredFiles struct {
	route, calendar, calendarDate, trip, stopTime, shape *zip.File
}

func loadZipFile(log zerolog.Logger, dsTx *gtfs.DataSetTransaction, localPath string) error {
	r, err := zip.OpenReader(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	files := requiredFiles{}
	for _, f := range r.File {
		switch f.Name {
		case "routes.txt":
			files.route = f
		case "calendar.txt":
			files.calendar = f
		case "calendar_dates.txt":
			files.calendarDate = f
		case "trips.txt":
			files.trip = f
		case "stop_times.txt":
			files.stopTime = f
		case "shapes.txt":
			files.shape = f
		}
	}
	var missing []string
	for name, f := range map[string]*zip.File{
		"routes.txt": files.route, "calendar.txt": files.calendar,
		"trips.txt": files.trip, "stop_times.txt": files.stopTime, "shapes.txt": files.shape,
	} {
		if f == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("gtfs zip is missing required file(s): %v", missing)
	}

	routes, err := loadRoutes(files.route)
	if err != nil {
		return err
	}
	if err := gtfs.RecordRoutes(routes, dsTx); err != nil {
		return err
	}

	if err := loadCalendar(log, files.calendar, dsTx); err != nil {
		return err
	}
	if files.calendarDate != nil {
		if err := loadCalendarDates(log, files.calendarDate, dsTx); err != nil {
			return err
		}
	}

	if err := loadShapes(log, files.shape, dsTx); err != nil {
		return err
	}
	tripBounds, err := loadStopTimes(log, files.stopTime, dsTx)
	if err != nil {
		return err
	}
	return loadTrips(log, files.trip, dsTx, tripBounds)
}

// stripBOM removes a leading UTF-8 byte-order-mark, which several published
// GTFS feeds include on their first header line and which gocsv does not
// strip itself.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	bom, err := br.Peek(3)
	if err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return br
}

func loadRoutes(f *zip.File) ([]*gtfs.Route, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var rows []*routeRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return nil, fmt.Errorf("parsing routes.txt: %w", err)
	}
	routes := make([]*gtfs.Route, 0, len(rows))
	for _, r := range rows {
		routes = append(routes, r.toRoute())
	}
	return routes, nil
}

func loadCalendar(log zerolog.Logger, f *zip.File, dsTx *gtfs.DataSetTransaction) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var rows []*calendarRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return fmt.Errorf("parsing calendar.txt: %w", err)
	}
	for _, r := range rows {
		calendar, err := r.toCalendar()
		if err != nil {
			return err
		}
		if err := gtfs.RecordCalendar(calendar, dsTx); err != nil {
			return err
		}
	}
	log.Info().Int("rows", len(rows)).Str("file", "calendar.txt").Msg("loaded")
	return nil
}

func loadCalendarDates(log zerolog.Logger, f *zip.File, dsTx *gtfs.DataSetTransaction) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var rows []*calendarDateRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return fmt.Errorf("parsing calendar_dates.txt: %w", err)
	}
	for _, r := range rows {
		calendarDate, err := r.toCalendarDate()
		if err != nil {
			return err
		}
		if err := gtfs.RecordCalendarDate(calendarDate, dsTx); err != nil {
			return err
		}
	}
	log.Info().Int("rows", len(rows)).Str("file", "calendar_dates.txt").Msg("loaded")
	return nil
}

// loadShapes parses shapes.txt, records every point in batches, and unflips
// any locally non-monotone shape_dist_traveled runs per shape_id.
func loadShapes(log zerolog.Logger, f *zip.File, dsTx *gtfs.DataSetTransaction) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var rows []*shapeRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return fmt.Errorf("parsing shapes.txt: %w", err)
	}

	byShape := make(map[string][]*gtfs.Shape)
	var order []string
	for _, r := range rows {
		shape, err := r.toShape()
		if err != nil {
			return err
		}
		if _, seen := byShape[shape.ShapeId]; !seen {
			order = append(order, shape.ShapeId)
		}
		byShape[shape.ShapeId] = append(byShape[shape.ShapeId], shape)
	}

	var batch []*gtfs.Shape
	for _, shapeId := range order {
		points := byShape[shapeId]
		sort.Slice(points, func(i, j int) bool { return points[i].ShapePtSequence < points[j].ShapePtSequence })
		stopTimesAsStopTime := toStopTimeLikeForUnflip(points)
		gtfs.UnflipShapeDistances(stopTimesAsStopTime)
		for i, p := range points {
			p.ShapeDistTraveled = &stopTimesAsStopTime[i].ShapeDistTraveled
		}
		batch = append(batch, points...)
		if len(batch) >= batchSize {
			if err := gtfs.RecordShapes(batch, dsTx); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := gtfs.RecordShapes(batch, dsTx); err != nil {
			return err
		}
	}
	log.Info().Int("rows", len(rows)).Str("file", "shapes.txt").Msg("loaded")
	return nil
}

// toStopTimeLikeForUnflip adapts a shape's points to gtfs.StopTime so the
// single UnflipShapeDistances implementation can be reused for shapes.txt,
// which carries the same optional, occasionally-non-monotone
// shape_dist_traveled column as stop_times.txt.
func toStopTimeLikeForUnflip(points []*gtfs.Shape) []*gtfs.StopTime {
	out := make([]*gtfs.StopTime, len(points))
	for i, p := range points {
		dist := 0.0
		if p.ShapeDistTraveled != nil {
			dist = *p.ShapeDistTraveled
		}
		out[i] = &gtfs.StopTime{ShapeDistTraveled: dist}
	}
	return out
}

type tripBounds struct {
	startSeconds, endSeconds int
}

func loadStopTimes(log zerolog.Logger, f *zip.File, dsTx *gtfs.DataSetTransaction) (map[string]*tripBounds, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var rows []*stopTimeRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}

	byTrip := make(map[string][]*gtfs.StopTime)
	var order []string
	for _, r := range rows {
		st, err := r.toStopTime()
		if err != nil {
			return nil, err
		}
		if _, seen := byTrip[st.TripId]; !seen {
			order = append(order, st.TripId)
		}
		byTrip[st.TripId] = append(byTrip[st.TripId], st)
	}

	bounds := make(map[string]*tripBounds, len(order))
	var batch []*gtfs.StopTime
	for _, tripId := range order {
		stops := byTrip[tripId]
		sort.Slice(stops, func(i, j int) bool { return stops[i].StopSequence < stops[j].StopSequence })
		gtfs.UnflipShapeDistances(stops)

		b := &tripBounds{startSeconds: stops[0].ArrivalSeconds, endSeconds: stops[len(stops)-1].DepartureSeconds}
		for _, st := range stops {
			if st.ArrivalSeconds < b.startSeconds {
				b.startSeconds = st.ArrivalSeconds
			}
			if st.DepartureSeconds > b.endSeconds {
				b.endSeconds = st.DepartureSeconds
			}
		}
		bounds[tripId] = b

		batch = append(batch, stops...)
		if len(batch) >= batchSize {
			if err := gtfs.RecordStopTimes(batch, dsTx); err != nil {
				return nil, err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := gtfs.RecordStopTimes(batch, dsTx); err != nil {
			return nil, err
		}
	}
	log.Info().Int("rows", len(rows)).Str("file", "stop_times.txt").Msg("loaded")
	return bounds, nil
}

func loadTrips(log zerolog.Logger, f *zip.File, dsTx *gtfs.DataSetTransaction,
	bounds map[string]*tripBounds) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var rows []*tripRow
	if err := gocsv.Unmarshal(stripBOM(rc), &rows); err != nil {
		return fmt.Errorf("parsing trips.txt: %w", err)
	}

	var batch []*gtfs.Trip
	for _, r := range rows {
		b, ok := bounds[r.TripId]
		if !ok {
			return fmt.Errorf("trip %s has no stop_times", r.TripId)
		}
		trip := r.toTrip()
		trip.StartSeconds = b.startSeconds
		trip.EndSeconds = b.endSeconds

		batch = append(batch, trip)
		if len(batch) >= batchSize {
			if err := gtfs.RecordTrips(batch, dsTx); err != nil {
				return err
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := gtfs.RecordTrips(batch, dsTx); err != nil {
			return err
		}
	}
	log.Info().Int("rows", len(rows)).Str("file", "trips.txt").Msg("loaded")
	return nil
}
