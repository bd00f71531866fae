package main

// Demo catalogs for the static agents. Entries are selected per point
// by hashing the point name, so repeated runs of the same route are
// deterministic.

var videoCatalog = []string{
	"Coastal drone flyover",
	"Old town walking tour",
	"Harbor at sunset timelapse",
	"Mountain pass dashcam",
	"Street food market reel",
	"Cathedral interior pan",
}

var musicCatalog = []string{
	"Levantine oud improvisation",
	"Alpine folk ensemble",
	"Port city jazz trio",
	"Flamenco guitar study",
	"Ambient field recording",
}

var textCatalog = []string{
	"A short history of the old quarter",
	"What locals eat here and where",
	"The siege that shaped the city walls",
	"Why the harbor faces east",
	"Legends of the mountain road",
	"Notes from a 19th century traveler",
}
