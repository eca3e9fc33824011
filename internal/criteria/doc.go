// Package criteria classifies converted file groups by protocol and decides
// whether each group belongs in the dataset.
//
// Classification matches the protocol field against the configured
// start-anchored protocol alternation and maps the matched token to a class.
// Each class then applies its own inclusion rule:
//   - diffusion: sidecar PhaseEncodingDirection must map to a direction code,
//     and SeriesDescription must not contain a derived-map marker
//   - functional: the volume's last axis must reach the configured minimum
//   - anatomical: always accepted
//
// Scout and localizer groups are recognized by name before decoding so the
// driver can drop them silently.
package criteria
