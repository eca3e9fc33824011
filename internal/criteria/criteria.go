package criteria

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"bidsort/internal/config"
	"bidsort/internal/fileutil"
	"bidsort/internal/logging"
	"bidsort/internal/media/nifti"
	"bidsort/internal/services"
)

// ClassExcluded marks groups whose protocol is not recognized.
const ClassExcluded = "excluded"

// Sidecar fields read during evaluation.
const (
	FieldPhaseEncodingDirection = "PhaseEncodingDirection"
	FieldSeriesDescription      = "SeriesDescription"
)

// Reason explains an inclusion decision.
type Reason string

const (
	ReasonAccepted             Reason = "accepted"
	ReasonUnrecognizedProtocol Reason = "unrecognized_protocol"
	ReasonDerivedMap           Reason = "derived_map"
	ReasonUnknownDirection     Reason = "unknown_direction"
	ReasonTooFewVolumes        Reason = "too_few_volumes"
	ReasonMissingSidecarField  Reason = "missing_sidecar_field"
)

// Decision is the result of evaluating one group.
type Decision struct {
	Accept bool
	// Class is one of the config class names or ClassExcluded.
	Class  string
	Reason Reason
	// Token is the protocol prefix that matched the recognized patterns.
	Token string
	// Direction is the acquisition direction code for diffusion groups.
	Direction string
	// Volumes is the last-axis extent read for functional groups.
	Volumes int64
}

// Modality returns the dataset folder the class is placed in.
func (d Decision) Modality() string {
	switch d.Class {
	case config.ClassT1, config.ClassT2:
		return "anat"
	case config.ClassDiffusion:
		return "dwi"
	case config.ClassFunctional:
		return "func"
	default:
		return ""
	}
}

// Evaluator applies the configured classification and inclusion rules. It
// holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	mapping       config.Mapping
	denylist      []string
	minVolumes    int64
	scoutPatterns []string
	logger        *slog.Logger
}

// NewEvaluator builds an evaluator from configuration.
func NewEvaluator(cfg *config.Config, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		mapping:       cfg.Mapping,
		denylist:      append([]string(nil), cfg.Criteria.DiffusionDenylist...),
		minVolumes:    int64(cfg.Criteria.MinFunctionalVolumes),
		scoutPatterns: append([]string(nil), cfg.Criteria.ScoutPatterns...),
		logger:        logging.NewComponentLogger(logger, "criteria"),
	}
}

// IsScout reports whether a group base name identifies a scout or localizer
// acquisition. Matching is case-insensitive.
func (e *Evaluator) IsScout(base string) bool {
	lower := strings.ToLower(base)
	for _, pattern := range e.scoutPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// Classify matches protocol against the recognized patterns and returns the
// matched token and its class. Unmatched or unmapped tokens classify as
// ClassExcluded.
func (e *Evaluator) Classify(protocol string) (string, string) {
	re := e.mapping.ProtocolPattern()
	if re == nil {
		return "", ClassExcluded
	}
	token := re.FindString(protocol)
	if token == "" {
		return "", ClassExcluded
	}
	class, ok := e.mapping.Classes[token]
	if !ok {
		return token, ClassExcluded
	}
	return token, class
}

// Evaluate classifies the group and applies the class inclusion rule. A
// rejected group is returned with a nil error unless the rejection stems from
// missing sidecar data, which returns services.ErrMissingSidecarField so the
// caller can discard it. Errors reading the group's files are fatal.
func (e *Evaluator) Evaluate(group fileutil.Group, protocol string) (Decision, error) {
	token, class := e.Classify(protocol)
	decision := Decision{Class: class, Token: token}
	if class == ClassExcluded {
		decision.Reason = ReasonUnrecognizedProtocol
		e.logDecision(group, decision)
		return decision, nil
	}

	var err error
	switch class {
	case config.ClassDiffusion:
		decision, err = e.evaluateDiffusion(group, decision)
	case config.ClassFunctional:
		decision, err = e.evaluateFunctional(group, decision)
	default:
		decision.Accept = true
		decision.Reason = ReasonAccepted
	}
	if err != nil {
		return decision, err
	}
	e.logDecision(group, decision)
	return decision, nil
}

func (e *Evaluator) evaluateDiffusion(group fileutil.Group, d Decision) (Decision, error) {
	sidecar, err := readSidecar(group)
	if err != nil {
		d.Reason = ReasonMissingSidecarField
		return d, err
	}
	phase := sidecar.Get(FieldPhaseEncodingDirection)
	if !phase.Exists() || strings.TrimSpace(phase.String()) == "" {
		d.Reason = ReasonMissingSidecarField
		return d, missingField(group, FieldPhaseEncodingDirection)
	}
	description := sidecar.Get(FieldSeriesDescription)
	if !description.Exists() {
		d.Reason = ReasonMissingSidecarField
		return d, missingField(group, FieldSeriesDescription)
	}

	for _, marker := range e.denylist {
		if marker != "" && strings.Contains(description.String(), marker) {
			d.Reason = ReasonDerivedMap
			return d, nil
		}
	}
	code, ok := e.mapping.Directions[phase.String()]
	if !ok {
		d.Reason = ReasonUnknownDirection
		return d, nil
	}
	d.Direction = code
	d.Accept = true
	d.Reason = ReasonAccepted
	return d, nil
}

func (e *Evaluator) evaluateFunctional(group fileutil.Group, d Decision) (Decision, error) {
	volume := group.Volume()
	if volume == "" {
		return d, services.Wrap(services.ErrValidation, "criteria", "functional", fmt.Sprintf("group %s has no NIfTI volume", group.Base), nil)
	}
	count, err := nifti.VolumeCount(volume)
	if err != nil {
		return d, services.Wrap(services.ErrValidation, "criteria", "functional", "read volume header", err)
	}
	d.Volumes = count
	if count < e.minVolumes {
		d.Reason = ReasonTooFewVolumes
		return d, nil
	}
	d.Accept = true
	d.Reason = ReasonAccepted
	return d, nil
}

func readSidecar(group fileutil.Group) (gjson.Result, error) {
	path := group.Sidecar()
	if path == "" {
		return gjson.Result{}, services.Wrap(services.ErrMissingSidecarField, "criteria", "sidecar", fmt.Sprintf("group %s has no sidecar", group.Base), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrMissingSidecarField, "criteria", "sidecar", "read sidecar", err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, services.Wrap(services.ErrMissingSidecarField, "criteria", "sidecar", fmt.Sprintf("%s is not valid JSON", path), nil)
	}
	return gjson.ParseBytes(data), nil
}

func missingField(group fileutil.Group, field string) error {
	return services.Wrap(services.ErrMissingSidecarField, "criteria", "sidecar", fmt.Sprintf("group %s sidecar lacks %s", group.Base, field), nil)
}

func (e *Evaluator) logDecision(group fileutil.Group, d Decision) {
	result := "rejected"
	if d.Accept {
		result = "accepted"
	}
	attrs := logging.DecisionAttrs("inclusion", result, string(d.Reason),
		logging.String("group", group.Base),
		logging.String("class", d.Class),
	)
	if d.Direction != "" {
		attrs = append(attrs, logging.String("direction", d.Direction))
	}
	if d.Volumes > 0 {
		attrs = append(attrs, logging.Int64("volumes", d.Volumes))
	}
	e.logger.Debug("inclusion decision", logging.Args(attrs...)...)
}
