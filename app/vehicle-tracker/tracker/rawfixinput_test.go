package tracker

import "testing"

func TestRawFixInput_ToRawFix_BrigadeIdFormatted(t *testing.T) {
	input := rawFixInput{VehicleId: 7, RouteShortName: "72", BrigadeId: 1234, Lat: 45.5, Lon: -122.6}
	fix := input.toRawFix()
	if fix.BrigadeId != "1234" {
		t.Errorf("expected brigade id \"1234\", got %q", fix.BrigadeId)
	}
	if !fix.Valid() {
		t.Error("expected a well-formed fix to be valid")
	}
}

func TestRawFixInput_ZeroBrigadeIdIsEmpty(t *testing.T) {
	input := rawFixInput{VehicleId: 7, RouteShortName: "72"}
	fix := input.toRawFix()
	if fix.BrigadeId != "" {
		t.Errorf("expected an empty brigade id, got %q", fix.BrigadeId)
	}
}

func TestRawFixInput_MissingRouteIsInvalid(t *testing.T) {
	input := rawFixInput{VehicleId: 7, Lat: 45.5, Lon: -122.6}
	if input.toRawFix().Valid() {
		t.Error("expected a fix with no route short name to be invalid")
	}
}

func TestRawFixInput_OutOfRangeCoordinatesInvalid(t *testing.T) {
	input := rawFixInput{VehicleId: 7, RouteShortName: "72", Lat: 200, Lon: -122.6}
	if input.toRawFix().Valid() {
		t.Error("expected an out-of-range latitude to be invalid")
	}
}
