package compat

import (
	"fmt"

	"github.com/openneuro/rtbids/internal/applog"
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/entity"
)

// mustMatch is the set of sidecar fields spec §4.2 requires agree
// between two metadata maps being appended.
var mustMatch = map[string]bool{
	"Modality": true, "MagneticFieldStrength": true, "ImagingFrequency": true,
	"Manufacturer": true, "ManufacturersModelName": true, "InstitutionName": true,
	"InstitutionAddress": true, "DeviceSerialNumber": true, "StationName": true,
	"BodyPartExamined": true, "PatientPosition": true, "EchoTime": true,
	"ProcedureStepDescription": true, "SoftwareVersions": true, "MRAcquisitionType": true,
	"SeriesDescription": true, "ProtocolName": true, "ScanningSequence": true,
	"SequenceVariant": true, "ScanOptions": true, "SequenceName": true,
	"SpacingBetweenSlices": true, "SliceThickness": true, "ImageType": true,
	"RepetitionTime": true, "PhaseEncodingDirection": true, "FlipAngle": true,
	"InPlanePhaseEncodingDirectionDICOM": true, "ImageOrientationPatientDICOM": true,
	"PartialFourier": true,
}

// mustDiffer is the set of fields spec §4.2 requires differ between two
// metadata maps being appended (they identify distinct acquisitions).
var mustDiffer = map[string]bool{
	"AcquisitionTime":   true,
	"AcquisitionNumber": true,
}

// MetadataAppendCompatible implements spec §4.2's
// metadata_append_compatible. Keys present in only one input are
// ignored. When disableCheck is true the predicate logs at debug and
// reports success unconditionally, per §6.3.
func MetadataAppendCompatible(a, b entity.Map, disableCheck bool) (bool, error) {
	if disableCheck {
		applog.WithField("op", "MetadataAppendCompatible").Debug("metadata check disabled by config; treating as compatible")
		return true, nil
	}

	for key, av := range a {
		bv, ok := b[key]
		if !ok {
			continue
		}

		if mustMatch[key] && !valuesEqual(av, bv) {
			err := bidserrors.Validation("MetadataAppendCompatible", fmt.Sprintf("field %q must match between append-compatible acquisitions", key)).
				WithDiffs(bidserrors.Diff{Field: key, A: av, B: bv})
			return false, err
		}
		if mustDiffer[key] && valuesEqual(av, bv) {
			err := bidserrors.Validation("MetadataAppendCompatible", fmt.Sprintf("field %q must differ between appended frames", key)).
				WithDiffs(bidserrors.Diff{Field: key, A: av, B: bv})
			return false, err
		}
	}

	return true, nil
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return closeEnough(af, bf)
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
