package acquire

import (
	nmea "github.com/adrianmo/go-nmea"
)

// The garment's wired firmware can emit NMEA-0183 framed readings instead of
// bare CSV: talker "SP", type "SEN", e.g.
//
//	$SPSEN,12.345,2512,2498,2634,2510,2488,2601,2590*4A
//
// First field is the device timestamp in seconds, the rest are one reading
// per sensor. The checksum gives line-noise detection that CSV lacks.
const TypeSEN = "SEN"

// SPSEN is the parsed sensor sentence.
type SPSEN struct {
	nmea.BaseSentence
	Time     float64
	Readings []float64
}

func init() {
	nmea.MustRegisterParser(TypeSEN, func(s nmea.BaseSentence) (nmea.Sentence, error) {
		p := nmea.NewParser(s)
		m := SPSEN{
			BaseSentence: s,
			Time:         p.Float64(0, "time"),
		}
		for i := 1; i < len(s.Fields); i++ {
			m.Readings = append(m.Readings, p.Float64(i, "reading"))
		}
		return m, p.Err()
	})
}
