/*
Package neural runs stateful neural audio models over streaming blocks.

Concept

A recurrent model consumes one block of audio at a time together with a
few conditioning values and its own state from the previous block. It
produces processed audio and the next state. The processor keeps that
state per channel and feeds it back, so consecutive blocks behave as one
continuous signal.

Model inputs and outputs are described by schema.Schema: one audio slot,
zero or more conditioning slots and zero or more state slots. Outputs are
the processed audio followed by one updated state per input state, in the
same order. Slots are bound by name.

Lifecycle

All buffers are allocated by Prepare, once per configuration:

    p, err := neural.New(schema.Hybrid(),
        neural.WithParameters(params),
    )
    err = p.Load(ort.Loader(cfg))
    err = p.Prepare(48000, 512, 2)

Process is then called from the audio callback with a block of
non-interleaved samples:

    p.Process(block)

It doesn't allocate, lock or log. Any change of block size or channel
count requires another Prepare. State is zeroed only when the channel
count changes, or on Release and Load.

Failures

Nothing fails inside Process. A channel whose inference fails keeps its
audio unchanged and its state from the last good block. Failures are
counted in Stats and reported by the next control call. Before a model is
loaded, Process passes audio through.

Inference runtimes plug in with Model and Session interfaces. Package ort
provides one for ONNX Runtime, package mock provides test doubles.
*/
package neural
