// Package cli implements the interactive line-prompt front-end.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"spacepredict/ml"
	"spacepredict/pipeline"
)

// Collector asks for passenger details one line at a time, repeating a
// prompt until the answer is acceptable.
type Collector struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewCollector(in io.Reader, out io.Writer) *Collector {
	return &Collector{in: bufio.NewScanner(in), out: out}
}

func (c *Collector) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return c.in.Text(), nil
}

// String reads a trimmed answer. With options, only a member is accepted.
func (c *Collector) String(prompt string, options []string) (string, error) {
	for {
		line, err := c.readLine(prompt)
		if err != nil {
			return "", err
		}
		val := pipeline.NormalizeText(line)
		if len(options) > 0 && !pipeline.CheckOption(val, options) {
			fmt.Fprintln(c.out, pipeline.OptionsMessage(options))
			continue
		}
		return val, nil
	}
}

// YesNo returns "True" for yes and "False" for no.
func (c *Collector) YesNo(prompt string) (string, error) {
	for {
		line, err := c.readLine(prompt + " (yes/no): ")
		if err != nil {
			return "", err
		}
		if val, ok := pipeline.ParseYesNo(line); ok {
			return val, nil
		}
		fmt.Fprintln(c.out, "Enter yes or no.")
	}
}

func (c *Collector) Float(prompt string) (float64, error) {
	for {
		line, err := c.readLine(prompt)
		if err != nil {
			return 0, err
		}
		if val, err := pipeline.ParseAmount(line); err == nil {
			return val, nil
		}
		fmt.Fprintln(c.out, "Invalid number. Try again.")
	}
}

// CollectPassenger prompts for every field in the order the form shows them.
func (c *Collector) CollectPassenger() (ml.RawRecord, error) {
	fmt.Fprint(c.out, "\n📋 Enter passenger details:\n\n")

	raw := make(ml.RawRecord, len(ml.FeatureNames()))
	steps := []func() error{
		func() (err error) {
			raw[ml.FieldHomePlanet], err = c.String("HomePlanet ("+strings.Join(pipeline.HomePlanetOptions(), "/")+"): ", pipeline.HomePlanetOptions())
			return
		},
		func() (err error) {
			raw[ml.FieldCryoSleep], err = c.YesNo("Was the passenger in CryoSleep?")
			return
		},
		func() (err error) {
			raw[ml.FieldCabin], err = c.String("Cabin (e.g., B/0/P, F/1/S): ", nil)
			return
		},
		func() (err error) {
			raw[ml.FieldDestination], err = c.String("Destination ("+strings.Join(pipeline.DestinationOptions(), "/")+"): ", pipeline.DestinationOptions())
			return
		},
		func() (err error) {
			raw[ml.FieldAge], err = c.Float("Age: ")
			return
		},
		func() (err error) {
			raw[ml.FieldVIP], err = c.YesNo("Is the passenger a VIP?")
			return
		},
	}
	for _, field := range []string{ml.FieldRoomService, ml.FieldFoodCourt, ml.FieldShoppingMall, ml.FieldSpa, ml.FieldVRDeck} {
		field := field
		steps = append(steps, func() (err error) {
			raw[field], err = c.Float(field + " spending: ")
			return
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func (c *Collector) PrintResult(result *pipeline.Result) {
	fmt.Fprintln(c.out, "\n🚀 Prediction Result 🚀")
	fmt.Fprintln(c.out, result.Message)
}
