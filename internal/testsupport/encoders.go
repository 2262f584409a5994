package testsupport

// Stub encoder scripts. Each receives "<flags...> <input> -o <output>".
const (
	// CopyEncoder copies the input to the output path.
	CopyEncoder = `#!/bin/sh
out=""
prev=""
in=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  if [ "$arg" != "-o" ] && [ "$prev" != "-o" ]; then in="$arg"; fi
  prev="$arg"
done
cp "$in" "$out"
`

	// FailingEncoder exits non-zero without writing output.
	FailingEncoder = "#!/bin/sh\necho 'unsupported image' >&2\nexit 4\n"

	// SlowEncoder sleeps before copying; used to hold slots open.
	SlowEncoder = `#!/bin/sh
sleep 0.3
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
echo data > "$out"
`

	// GatedEncoder runs until a file named "release" appears next to the
	// script; see ReleaseGatedEncoder.
	GatedEncoder = `#!/bin/sh
gate="$(dirname "$0")/release"
while [ ! -e "$gate" ]; do sleep 0.05; done
`
)
