// Package events defines the event contract shared by the realtime session
// engine and its subscribers.
//
// Inbound kinds mirror the realtime protocol's event types:
//
//   - error: the remote side reported an error. Non-fatal.
//   - response.created / response.output_item.added / response.done: the
//     response lifecycle the engine tracks to handle interruptions.
//   - input_audio_buffer.speech_started / speech_stopped: server-side voice
//     activity detection.
//   - response.text.delta, response.audio.delta,
//     response.audio_transcript.delta: streamed output, passed through.
//   - response.function_call_arguments.done: the model wants a tool called.
//
// Locally raised kinds:
//
//   - user.interruption: the user started speaking; playback should stop.
//
// Dispatch semantics:
//
//   - At most one handler per concrete kind. Subscribing again replaces the
//     previous handler.
//   - One wildcard handler ([KindAny]) sees every event and always runs
//     before the kind-specific handler.
//   - Handlers run synchronously, in arrival order, on the receive loop.
package events
