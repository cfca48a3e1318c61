// Package habitability derives physical quantities and a heuristic
// habitability score for a single planet row. Computation never fails: a
// quantity whose inputs are missing or degenerate is left nil.
package habitability

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
)

// Physical constants (SI).
const (
	G            = 6.67430e-11
	SolarMass    = 1.98847e30
	SolarRadius  = 6.957e8
	SolarLum     = 3.828e26
	SolarTeff    = 5778.0
	EarthRadius  = 6.371e6
	EarthMass    = 5.972e24
	JupiterMass  = 1.898e27
	AU           = 1.495978707e11
	SecondsInDay = 86400.0
	Albedo       = 0.3
	ParsecToLY   = 3.26156
	EarthGravity = 9.81
	EarthTeq     = 288.0
)

// Habitable-zone effective flux limits.
const (
	hzInnerFlux = 1.1
	hzOuterFlux = 0.53
)

// UnknownName is used when a row carries no planet name.
const UnknownName = "Unknown"

// Row is one planet's raw values keyed by archive column name.
type Row map[string]string

func (r Row) number(keys ...string) *float64 {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		if x, ok := ingest.ParseNumber(raw); ok {
			return &x
		}
	}
	return nil
}

func (r Row) name() string {
	for _, k := range []string{"pl_name", "name"} {
		if v := strings.TrimSpace(r[k]); v != "" && !ingest.IsMissing(v) {
			return v
		}
	}
	return UnknownName
}

// Record is the habitability assessment of one planet.
type Record struct {
	Name            string   `json:"name"`
	Radius          *float64 `json:"radius"`
	TempEq          *float64 `json:"temp_eq"`
	HabitableZone   bool     `json:"zone_habitable"`
	Score           float64  `json:"habitability_score"`
	Gravity         *float64 `json:"gravity_m_s2"`
	Irradiance      *float64 `json:"luminosity_w_m2"`
	SemiMajorAxisAU *float64 `json:"semi_major_axis_au"`
	LuminosityRel   *float64 `json:"luminosity_rel"`
	HZInnerAU       *float64 `json:"hz_inner_au"`
	HZOuterAU       *float64 `json:"hz_outer_au"`
	ESI             *float64 `json:"esi"`
	StarClass       *string  `json:"star_class"`
	DistancePC      *float64 `json:"distance_pc"`
	DistanceLY      *float64 `json:"distance_ly"`
	Summary         string   `json:"summary"`
}

// finite keeps x only when it is a real number.
func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func positive(p *float64) bool { return p != nil && *p > 0 }

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// SemiMajorAxis applies Kepler's third law. Period is in days, stellar mass
// in solar masses; the result is in metres. A zero period or mass yields
// nil rather than a zero distance.
func SemiMajorAxis(periodDays, stellarMass *float64) *float64 {
	if !positive(periodDays) || !positive(stellarMass) {
		return nil
	}
	p := *periodDays * SecondsInDay
	return finite(math.Cbrt(G * *stellarMass * SolarMass * p * p / (4 * math.Pi * math.Pi)))
}

// RelativeLuminosity is L/L_sun from stellar radius (solar radii) and
// effective temperature. A zero radius or temperature yields nil, not 0.
func RelativeLuminosity(stellarRadius, teff *float64) *float64 {
	if !positive(stellarRadius) || !positive(teff) {
		return nil
	}
	return finite(*stellarRadius * *stellarRadius * math.Pow(*teff/SolarTeff, 4))
}

// HabitableZone returns the inner and outer bounds in AU.
func HabitableZone(lumRel *float64) (inner, outer *float64) {
	if !positive(lumRel) {
		return nil, nil
	}
	return finite(math.Sqrt(*lumRel / hzInnerFlux)), finite(math.Sqrt(*lumRel / hzOuterFlux))
}

// EquilibriumTemperature in kelvin for a planet at distance a (metres).
func EquilibriumTemperature(teff, stellarRadius, a *float64) *float64 {
	if !positive(teff) || !positive(stellarRadius) || !positive(a) {
		return nil
	}
	rs := *stellarRadius * SolarRadius
	return finite(*teff * math.Sqrt(rs/(2 * *a)) * math.Pow(1-Albedo, 0.25))
}

// SurfaceGravity in m/s² from mass in kilograms and radius in Earth radii.
func SurfaceGravity(massKg, radiusEarth *float64) *float64 {
	if !positive(massKg) || !positive(radiusEarth) {
		return nil
	}
	r := *radiusEarth * EarthRadius
	return finite(G * *massKg / (r * r))
}

// Irradiance in W/m² at distance a (metres).
func Irradiance(lumRel, a *float64) *float64 {
	if lumRel == nil || !positive(a) {
		return nil
	}
	return finite(*lumRel * SolarLum / (4 * math.Pi * *a * *a))
}

// SpectralClass maps effective temperature to O/B/A/F/G/K/M.
func SpectralClass(teff *float64) *string {
	if teff == nil {
		return nil
	}
	var c string
	switch t := *teff; {
	case t >= 30000:
		c = "O"
	case t >= 10000:
		c = "B"
	case t >= 7500:
		c = "A"
	case t >= 6000:
		c = "F"
	case t >= 5200:
		c = "G"
	case t >= 3700:
		c = "K"
	default:
		c = "M"
	}
	return &c
}

// similarity is 1 - |x-ref|/(x+ref) clamped to [0,1]; nil unless x > 0.
func similarity(x *float64, ref float64) *float64 {
	if !positive(x) {
		return nil
	}
	v := 1 - math.Abs(*x-ref)/(*x+ref)
	return finite(math.Max(0, math.Min(1, v)))
}

// ESI is the Earth Similarity Index: the geometric mean of the radius,
// gravity and temperature similarities that can be computed. Nil when none
// can.
func ESI(radiusEarth, gravity, teq *float64) *float64 {
	var g *float64
	if positive(gravity) {
		g = finite(*gravity / EarthGravity)
	}
	var parts []float64
	for _, p := range []*float64{similarity(radiusEarth, 1), similarity(g, 1), similarity(teq, EarthTeq)} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	prod := 1.0
	for _, p := range parts {
		prod *= p
	}
	v := finite(math.Pow(prod, 1/float64(len(parts))))
	if v != nil {
		r := round(*v, 4)
		v = &r
	}
	return v
}

// Score adds 0.4 for an equilibrium temperature in [0, 373] K, 0.3 for a
// radius of at most 2 Earth radii, 0.2 for habitable-zone membership and
// 0.1 for a stellar temperature in [4000, 6000] K.
func Score(inHZ bool, radius, teq, teff *float64) float64 {
	s := 0.0
	if teq != nil && *teq >= 0 && *teq <= 373 {
		s += 0.4
	}
	if radius != nil && *radius <= 2.0 {
		s += 0.3
	}
	if inHZ {
		s += 0.2
	}
	if teff != nil && *teff >= 4000 && *teff <= 6000 {
		s += 0.1
	}
	return round(s, 4)
}

// Compute evaluates one row.
func Compute(row Row) Record {
	teff := row.number("st_teff")
	srad := row.number("st_rad")
	smass := row.number("st_mass")
	period := row.number("pl_orbper")
	radius := row.number("pl_rade")
	massE := row.number("pl_bmasse")
	massJ := row.number("pl_bmassj", "pl_massj")
	dist := row.number("st_dist", "sy_dist")

	rec := Record{Name: row.name(), Radius: radius, StarClass: SpectralClass(teff)}

	a := SemiMajorAxis(period, smass)
	if a != nil {
		rec.SemiMajorAxisAU = finite(*a / AU)
	}
	rec.LuminosityRel = RelativeLuminosity(srad, teff)
	rec.HZInnerAU, rec.HZOuterAU = HabitableZone(rec.LuminosityRel)
	if rec.SemiMajorAxisAU != nil && rec.HZInnerAU != nil && rec.HZOuterAU != nil {
		au := *rec.SemiMajorAxisAU
		rec.HabitableZone = au >= *rec.HZInnerAU && au <= *rec.HZOuterAU
	}

	rec.TempEq = row.number("pl_eqt")
	if rec.TempEq == nil {
		rec.TempEq = EquilibriumTemperature(teff, srad, a)
	}

	var massKg *float64
	switch {
	case massE != nil:
		massKg = finite(*massE * EarthMass)
	case massJ != nil:
		massKg = finite(*massJ * JupiterMass)
	}
	rec.Gravity = SurfaceGravity(massKg, radius)
	rec.Irradiance = Irradiance(rec.LuminosityRel, a)
	rec.ESI = ESI(radius, rec.Gravity, rec.TempEq)

	if dist != nil {
		rec.DistancePC = dist
		rec.DistanceLY = finite(*dist * ParsecToLY)
	}
	rec.Score = Score(rec.HabitableZone, radius, rec.TempEq, teff)
	rec.Summary = summarize(rec)
	return rec
}

func summarize(rec Record) string {
	where := "outside"
	if rec.HabitableZone {
		where = "inside"
	}
	temp := "unknown"
	if rec.TempEq != nil {
		temp = fmt.Sprintf("%d K", int(math.Round(*rec.TempEq)))
	}
	size := "unknown"
	if rec.Radius != nil {
		size = fmt.Sprintf("%.1fx Earth", *rec.Radius)
	}
	return fmt.Sprintf("%s is located %s the habitable zone, with an equilibrium temperature of %s, a radius of %s and a habitability score of %.2f.",
		rec.Name, where, temp, size, rec.Score)
}

// ComputeAll evaluates every row in order.
func ComputeAll(rows []Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Compute(r))
	}
	return out
}

// Planet is the JSON payload accepted in place of a table row.
type Planet struct {
	Name          string   `json:"pl_name"`
	StellarTeff   *float64 `json:"st_teff"`
	StellarRadius *float64 `json:"st_rad"`
	StellarMass   *float64 `json:"st_mass"`
	OrbitalPeriod *float64 `json:"pl_orbper"`
	PlanetRadius  *float64 `json:"pl_rade"`
	TempEq        *float64 `json:"pl_eqt"`
	Insolation    *float64 `json:"pl_insol"`
	MassEarth     *float64 `json:"pl_bmasse"`
	Distance      *float64 `json:"sy_dist"`
}

// FromPlanet converts a JSON planet into a row.
func FromPlanet(p Planet) Row {
	row := Row{"pl_name": p.Name}
	set := func(key string, v *float64) {
		if v != nil {
			row[key] = strconv.FormatFloat(*v, 'g', -1, 64)
		}
	}
	set("st_teff", p.StellarTeff)
	set("st_rad", p.StellarRadius)
	set("st_mass", p.StellarMass)
	set("pl_orbper", p.OrbitalPeriod)
	set("pl_rade", p.PlanetRadius)
	set("pl_eqt", p.TempEq)
	set("pl_insol", p.Insolation)
	set("pl_bmasse", p.MassEarth)
	set("sy_dist", p.Distance)
	return row
}
