package webrtc

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// RTCP readers must run for the interceptor chain to process feedback.
// Reports are summarized at debug level; the call core has no adaptive
// quality logic to feed them into.

func drainSenderRTCP(sender *webrtc.RTPSender, logger *zap.SugaredLogger) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		logRTCP(packets, "sender", logger)
	}
}

func drainReceiverRTCP(receiver *webrtc.RTPReceiver, logger *zap.SugaredLogger) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		logRTCP(packets, "receiver", logger)
	}
}

func logRTCP(packets []rtcp.Packet, direction string, logger *zap.SugaredLogger) {
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				logger.Debugw("rtcp receiver report",
					"direction", direction,
					"fraction_lost", report.FractionLost,
					"jitter", report.Jitter,
				)
			}
		case *rtcp.SenderReport:
			logger.Debugw("rtcp sender report",
				"direction", direction,
				"packets", p.PacketCount,
				"octets", p.OctetCount,
			)
		case *rtcp.TransportLayerNack:
			logger.Debugw("rtcp nack", "direction", direction, "nacks", len(p.Nacks))
		case *rtcp.PictureLossIndication:
			logger.Debugw("rtcp pli", "direction", direction)
		}
	}
}
