package units

// QUDT unit URIs for the built-in alias table.
const (
	uriDegC       = "http://qudt.org/vocab/unit/DEG_C"
	uriDegF       = "http://qudt.org/vocab/unit/DEG_F"
	uriKelvin     = "http://qudt.org/vocab/unit/K"
	uriUSPerCM    = "http://qudt.org/vocab/unit/MicroS-PER-CentiM"
	uriMGPerL     = "http://qudt.org/vocab/unit/MilliGM-PER-L"
	uriUGPerL     = "http://qudt.org/vocab/unit/MicroGM-PER-L"
	uriUGPerM3    = "http://qudt.org/vocab/unit/MicroGM-PER-M3"
	uriFT3PerSec  = "http://qudt.org/vocab/unit/FT3-PER-SEC"
	uriM3PerSec   = "http://qudt.org/vocab/unit/M3-PER-SEC"
	uriMilliM     = "http://qudt.org/vocab/unit/MilliM"
	uriMeter      = "http://qudt.org/vocab/unit/M"
	uriFoot       = "http://qudt.org/vocab/unit/FT"
	uriPercent    = "http://qudt.org/vocab/unit/PERCENT"
	uriHectoPA    = "http://qudt.org/vocab/unit/HectoPA"
	uriMPerSec    = "http://qudt.org/vocab/unit/M-PER-SEC"
	uriWPerM2     = "http://qudt.org/vocab/unit/W-PER-M2"
	uriPH         = "http://qudt.org/vocab/unit/PH"
	uriMMPerHR    = "http://qudt.org/vocab/unit/MilliM-PER-HR"
	uriDegree     = "http://qudt.org/vocab/unit/DEG"
	uriPPM        = "http://qudt.org/vocab/unit/PPM"
)

// builtinAliases maps common unit spellings, as seen in USGS NWIS, NOAA,
// ERA5, and air-quality catalogs, to canonical short forms. Keys are matched
// case-insensitively with collapsed whitespace.
var builtinAliases = map[string]Info{
	// Temperature.
	"degc":            {Canonical: "degC", URI: uriDegC},
	"deg c":           {Canonical: "degC", URI: uriDegC},
	"°c":              {Canonical: "degC", URI: uriDegC},
	"c":               {Canonical: "degC", URI: uriDegC},
	"celsius":         {Canonical: "degC", URI: uriDegC},
	"degrees celsius": {Canonical: "degC", URI: uriDegC},
	"degf":            {Canonical: "degF", URI: uriDegF},
	"deg f":           {Canonical: "degF", URI: uriDegF},
	"°f":              {Canonical: "degF", URI: uriDegF},
	"fahrenheit":      {Canonical: "degF", URI: uriDegF},
	"k":               {Canonical: "K", URI: uriKelvin},
	"kelvin":          {Canonical: "K", URI: uriKelvin},

	// Conductance and concentration.
	"us/cm":                     {Canonical: "uS/cm", URI: uriUSPerCM},
	"µs/cm":                     {Canonical: "uS/cm", URI: uriUSPerCM},
	"usiemens/cm":               {Canonical: "uS/cm", URI: uriUSPerCM},
	"microsiemens per cm":       {Canonical: "uS/cm", URI: uriUSPerCM},
	"microsiemens/centimeter":   {Canonical: "uS/cm", URI: uriUSPerCM},
	"mg/l":                      {Canonical: "mg/L", URI: uriMGPerL},
	"milligrams per liter":      {Canonical: "mg/L", URI: uriMGPerL},
	"ug/l":                      {Canonical: "ug/L", URI: uriUGPerL},
	"µg/l":                      {Canonical: "ug/L", URI: uriUGPerL},
	"micrograms per liter":      {Canonical: "ug/L", URI: uriUGPerL},
	"ug/m3":                     {Canonical: "ug/m3", URI: uriUGPerM3},
	"µg/m³":                     {Canonical: "ug/m3", URI: uriUGPerM3},
	"micrograms per cubic meter": {Canonical: "ug/m3", URI: uriUGPerM3},
	"ppm":                       {Canonical: "ppm", URI: uriPPM},
	"parts per million":         {Canonical: "ppm", URI: uriPPM},

	// Flow.
	"cfs":                   {Canonical: "ft3/s", URI: uriFT3PerSec},
	"ft3/s":                 {Canonical: "ft3/s", URI: uriFT3PerSec},
	"ft^3/s":                {Canonical: "ft3/s", URI: uriFT3PerSec},
	"cubic feet per second": {Canonical: "ft3/s", URI: uriFT3PerSec},
	"cms":                   {Canonical: "m3/s", URI: uriM3PerSec},
	"m3/s":                  {Canonical: "m3/s", URI: uriM3PerSec},
	"m^3/s":                 {Canonical: "m3/s", URI: uriM3PerSec},
	"cubic meters per second": {Canonical: "m3/s", URI: uriM3PerSec},

	// Length and precipitation.
	"mm":          {Canonical: "mm", URI: uriMilliM},
	"millimeters": {Canonical: "mm", URI: uriMilliM},
	"m":           {Canonical: "m", URI: uriMeter},
	"meters":      {Canonical: "m", URI: uriMeter},
	"ft":          {Canonical: "ft", URI: uriFoot},
	"feet":        {Canonical: "ft", URI: uriFoot},
	"mm/hr":       {Canonical: "mm/hr", URI: uriMMPerHR},
	"mm/h":        {Canonical: "mm/hr", URI: uriMMPerHR},

	// Atmosphere.
	"hpa":          {Canonical: "hPa", URI: uriHectoPA},
	"hectopascals": {Canonical: "hPa", URI: uriHectoPA},
	"mb":           {Canonical: "hPa", URI: uriHectoPA},
	"millibars":    {Canonical: "hPa", URI: uriHectoPA},
	"m/s":          {Canonical: "m/s", URI: uriMPerSec},
	"meters per second": {Canonical: "m/s", URI: uriMPerSec},
	"w/m2":         {Canonical: "W/m2", URI: uriWPerM2},
	"w/m^2":        {Canonical: "W/m2", URI: uriWPerM2},
	"watts per square meter": {Canonical: "W/m2", URI: uriWPerM2},
	"deg":          {Canonical: "deg", URI: uriDegree},
	"degrees":      {Canonical: "deg", URI: uriDegree},

	// Dimensionless.
	"%":              {Canonical: "%", URI: uriPercent},
	"percent":        {Canonical: "%", URI: uriPercent},
	"ph":             {Canonical: "pH", URI: uriPH},
	"standard units": {Canonical: "pH", URI: uriPH},
}

// conversion is an affine transform: out = value*scale + offset.
type conversion struct {
	scale  float64
	offset float64
}

func (c conversion) apply(value float64) float64 {
	return value*c.scale + c.offset
}

func (c conversion) inverse() conversion {
	return conversion{scale: 1 / c.scale, offset: -c.offset / c.scale}
}

type unitPair struct {
	from string
	to   string
}

// builtinConversions holds one direction of each common pair; the inverse is
// derived. Keys are canonical forms.
var builtinConversions = map[unitPair]conversion{
	{"degC", "degF"}:  {scale: 9.0 / 5.0, offset: 32},
	{"degC", "K"}:     {scale: 1, offset: 273.15},
	{"degF", "K"}:     {scale: 5.0 / 9.0, offset: 273.15 - 32*5.0/9.0},
	{"ft3/s", "m3/s"}: {scale: 0.0283168466},
	{"ft", "m"}:       {scale: 0.3048},
	{"mm", "m"}:       {scale: 0.001},
	{"mg/L", "ug/L"}:  {scale: 1000},
}

func lookupConversion(from, to string) (conversion, bool) {
	if conv, ok := builtinConversions[unitPair{from, to}]; ok {
		return conv, true
	}
	if conv, ok := builtinConversions[unitPair{to, from}]; ok {
		return conv.inverse(), true
	}
	return conversion{}, false
}
