/*
go-planktrack counts plankton organisms passing through a microscope flow
cell.  Frames from a camera, video file or still image are run through a
YOLOv8 detector, associated over time with a ByteTrack multi-object tracker
and fed to a unique-count aggregator that counts each organism exactly once
no matter how many frames it stays in view.

The counter package holds the aggregator and is free of any video or model
dependency.  The pipeline package wires a frame source, detector, tracker,
overlay renderer and exporters together, and example/flowcount provides a
command line tool to run it.
*/
package planktrack
