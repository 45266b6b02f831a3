// Package compat implements the two pure predicates that drive every
// append decision (spec §4.2): images_append_compatible and
// metadata_append_compatible. Both may be disabled process-wide by
// internal/config (§6.3); disabled checks are logged at debug via
// internal/applog and report success unconditionally.
package compat

import (
	"math"

	"github.com/openneuro/rtbids/internal/applog"
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/nifti"
)

func closeEnough(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// ImagesAppendCompatible implements spec §4.2's images_append_compatible:
// the must-match header field set, then dimension reconciliation (Case A
// / Case B). When disableCheck is true the predicate logs at debug and
// reports success unconditionally, per §6.3.
func ImagesAppendCompatible(a, b *nifti.Image, disableCheck bool) (bool, error) {
	if disableCheck {
		applog.WithField("op", "ImagesAppendCompatible").Debug("nifti header check disabled by config; treating as compatible")
		return true, nil
	}

	if diffs := mustMatchHeaderDiffs(a.Header, b.Header); len(diffs) > 0 {
		err := bidserrors.Validation("ImagesAppendCompatible", "header field mismatch: "+diffs[0].Field).WithDiffs(diffs...)
		return false, err
	}

	if err := dimensionsReconcile(a.Header, b.Header); err != nil {
		return false, err
	}

	return true, nil
}

func mustMatchHeaderDiffs(a, b nifti.Header) []bidserrors.Diff {
	var diffs []bidserrors.Diff
	check := func(field string, av, bv float64) {
		if !closeEnough(av, bv) {
			diffs = append(diffs, bidserrors.Diff{Field: field, A: av, B: bv})
		}
	}
	checkInt := func(field string, av, bv int64) {
		if av != bv {
			diffs = append(diffs, bidserrors.Diff{Field: field, A: av, B: bv})
		}
	}

	check("intent_p1", a.IntentP1, b.IntentP1)
	check("intent_p2", a.IntentP2, b.IntentP2)
	check("intent_p3", a.IntentP3, b.IntentP3)
	checkInt("intent_code", int64(a.IntentCode), int64(b.IntentCode))
	checkInt("dim_info", int64(a.DimInfo), int64(b.DimInfo))
	checkInt("datatype", int64(a.DataType), int64(b.DataType))
	checkInt("bitpix", int64(a.BitPix), int64(b.BitPix))
	checkInt("xyzt_units", int64(a.XYZTUnits), int64(b.XYZTUnits))
	check("slice_duration", a.SliceDuration, b.SliceDuration)
	check("toffset", a.Toffset, b.Toffset)
	check("scl_slope", a.SclSlope, b.SclSlope)
	check("scl_inter", a.SclInter, b.SclInter)
	checkInt("qform_code", int64(a.QformCode), int64(b.QformCode))
	check("quatern_b", a.QuaternB, b.QuaternB)
	check("quatern_c", a.QuaternC, b.QuaternC)
	check("quatern_d", a.QuaternD, b.QuaternD)
	check("qoffset_x", a.QoffsetX, b.QoffsetX)
	check("qoffset_y", a.QoffsetY, b.QoffsetY)
	check("qoffset_z", a.QoffsetZ, b.QoffsetZ)
	checkInt("sform_code", int64(a.SformCode), int64(b.SformCode))
	for i := 0; i < 4; i++ {
		check("srow_x", a.SrowX[i], b.SrowX[i])
		check("srow_y", a.SrowY[i], b.SrowY[i])
		check("srow_z", a.SrowZ[i], b.SrowZ[i])
	}

	return diffs
}

// dimensionsReconcile implements the Case A / Case B dimension
// reconciliation of spec §4.2.
func dimensionsReconcile(a, b nifti.Header) error {
	na, nb := a.NumDims(), b.NumDims()

	switch {
	case na == nb:
		// Case A: pixdim equal on all axes; spatial dims equal on all
		// axes except the last.
		for i := 1; i <= na; i++ {
			if !closeEnough(a.Pixdim[i], b.Pixdim[i]) {
				return bidserrors.Validation("ImagesAppendCompatible", "pixdim mismatch at axis "+axisName(i)).
					WithDiffs(bidserrors.Diff{Field: "pixdim[" + axisName(i) + "]", A: a.Pixdim[i], B: b.Pixdim[i]})
			}
		}
		for i := 1; i < na; i++ {
			if a.Dim[i] != b.Dim[i] {
				return bidserrors.Validation("ImagesAppendCompatible", "spatial dimension mismatch at axis "+axisName(i)).
					WithDiffs(bidserrors.Diff{Field: "dim[" + axisName(i) + "]", A: a.Dim[i], B: b.Dim[i]})
			}
		}
		return nil

	case abs(na-nb) == 1:
		// Case B: shared-prefix dimensions and their pixdims equal.
		n := na
		if nb < n {
			n = nb
		}
		for i := 1; i <= n; i++ {
			if a.Dim[i] != b.Dim[i] {
				return bidserrors.Validation("ImagesAppendCompatible", "shared-prefix dimension mismatch at axis "+axisName(i)).
					WithDiffs(bidserrors.Diff{Field: "dim[" + axisName(i) + "]", A: a.Dim[i], B: b.Dim[i]})
			}
			if !closeEnough(a.Pixdim[i], b.Pixdim[i]) {
				return bidserrors.Validation("ImagesAppendCompatible", "shared-prefix pixdim mismatch at axis "+axisName(i)).
					WithDiffs(bidserrors.Diff{Field: "pixdim[" + axisName(i) + "]", A: a.Pixdim[i], B: b.Pixdim[i]})
			}
		}
		return nil

	default:
		return bidserrors.Validation("ImagesAppendCompatible", "dimension counts differ by more than one")
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func axisName(i int) string {
	names := []string{"0", "1", "2", "3", "4", "5", "6", "7"}
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return "?"
}
