// Package dcm2niix wraps the dcm2niix DICOM-to-NIfTI converter.
//
// Each Convert call runs the converter once against a DICOM series folder and
// returns the files it wrote into a fresh output directory. Command execution
// goes through the Executor interface so tests can substitute a fake that
// writes synthetic outputs.
package dcm2niix
